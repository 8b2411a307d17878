package http

import (
	"fmt"
	"html/template"
	"io/fs"

	"household/internal/core"
	appweb "household/web"
)

// pageNames lists the templates under web/templates that render a full
// page through the shared layout.
var pageNames = []string{
	"login",
	"overview",
	"balance",
	"add",
	"edit",
	"delete",
	"search",
	"error",
}

// page is the data every template receives.
type page struct {
	Title    string
	Nav      string
	User     string
	Flashes  []Flash
	Currency string
	Body     any
}

type loginView struct {
	Username string
	Error    string
}

type monthPicker struct {
	Options  []core.MonthOption
	Selected string
	Action   string
}

type overviewView struct {
	Picker          monthPicker
	MonthName       string
	HasMonth        bool
	StartingBalance core.Number
	Populated       bool
	Summary         core.MonthSummary
}

type balanceView struct {
	Picker          monthPicker
	MonthName       string
	HasMonth        bool
	StartingBalance core.Number
	IsCurrent       bool
	CurrentMonth    string
}

type addView struct {
	MonthName       string
	CurrentMonth    string
	HasBalance      bool
	StartingBalance core.Number
	Categories      []string
	Cart            []cartItem
	CartTotal       core.Number
}

type editView struct {
	Picker    monthPicker
	MonthName string
	HasMonth  bool
	Expenses  []core.ExpenseRecord
	Selected  *core.ExpenseRecord
}

type deleteView struct {
	Picker    monthPicker
	MonthName string
	HasMonth  bool
	Expenses  []core.ExpenseRecord
}

type searchView struct {
	Picker    monthPicker
	MonthName string
	HasMonth  bool
	Date      string
	Query     string
	Error     string
	Filtered  bool
	Results   []core.ExpenseRecord
	Total     core.Number
}

type errorView struct {
	Status  int
	Message string
}

// parsePages parses every page together with the layout, one template set
// per page, so each page can define its own "content" block.
func parsePages(currency string) (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"money": func(n core.Number) string { return formatAmount(currency, n) },
		"num":   func(n core.Number) string { return n.String() },
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(appweb.TemplatesFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// staticFS returns the embedded static assets rooted at web/static.
func staticFS() (fs.FS, error) {
	return fs.Sub(appweb.StaticFS, "static")
}
