// Package web holds the embedded page templates and static assets of the
// household ledger UI.
package web

import "embed"

// TemplatesFS embeds the page templates. Every page is parsed together with
// layout.html and partials.html.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and images.
//
//go:embed static/*
var StaticFS embed.FS
