package http

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"household/internal/cache"
	"household/internal/core"
	"household/internal/log"
	"household/internal/metrics"
	"household/internal/middleware/ratelimit"
	"household/internal/middleware/security"
	"household/internal/middleware/trace"
	"household/internal/services"
	"household/internal/storage"
)

// Options configures NewServer.
type Options struct {
	Addr           string
	Username       string
	Password       string
	SessionSecret  string
	SessionTTL     time.Duration
	CurrencySymbol string

	// BcryptCost of zero means bcrypt.DefaultCost.
	BcryptCost int
	LoginLimit ratelimit.Config

	// Storage is probed by /readyz when it can be pinged.
	Storage storage.Backend
	Metrics *metrics.Metrics
	Logger  *log.Logger
	Now     func() time.Time
}

type Server struct {
	http.Server
	ledger   *services.LedgerService
	pages    map[string]*template.Template
	auth     *Authenticator
	sessions *SessionManager
	limiter  *ratelimit.Limiter
	caches   *cache.Manager
	tracer   *trace.Middleware
	validate *validator.Validate
	storage  storage.Backend
	metrics  *metrics.Metrics
	logger   *log.Logger
	currency string
	started  time.Time

	// mu serializes load, mutate and save of the ledger document.
	mu           sync.Mutex
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(opts Options, ledger *services.LedgerService) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	var observer trace.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	pages, err := parsePages(opts.CurrencySymbol)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthenticator(opts.Username, opts.Password, opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ledger:   ledger,
		pages:    pages,
		auth:     auth,
		sessions: NewSessionManager(opts.SessionSecret, opts.SessionTTL, opts.Now),
		limiter:  ratelimit.NewLimiter(opts.LoginLimit),
		caches:   cache.NewManager(opts.Logger),
		tracer:   trace.NewMiddleware(opts.Logger, clientIP, observer),
		validate: newValidator(),
		storage:  opts.Storage,
		metrics:  opts.Metrics,
		logger:   logger,
		currency: opts.CurrencySymbol,
		started:  opts.Now(),
	}
	s.sessions.Register(s.caches)
	s.caches.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		s.stopBackground()
		return nil, err
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.tracer.Middleware(headers.Middleware(security.SameOriginForms(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	static, err := staticFS()
	if err != nil {
		return err
	}
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, trace.Route(pattern, h))
	}

	handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))
	handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	handle("GET /readyz", http.HandlerFunc(s.handleReady))
	if s.metrics != nil {
		handle("GET /metrics", s.metrics.Handler())
	}

	handle("GET /login", http.HandlerFunc(s.handleLoginPage))
	handle("POST /login", s.limiter.Middleware(clientIP, s.loginLimited)(http.HandlerFunc(s.handleLogin)))
	handle("POST /logout", s.requireAuth(s.handleLogout))

	handle("GET /{$}", s.requireAuth(s.handleOverview))
	handle("GET /balance", s.requireAuth(s.handleBalancePage))
	handle("POST /balance", s.requireAuth(s.handleSetBalance))

	handle("GET /expenses/new", s.requireAuth(s.handleAddPage))
	handle("POST /cart", s.requireAuth(s.handleAddToCart))
	handle("POST /cart/{index}/delete", s.requireAuth(s.handleRemoveFromCart))
	handle("POST /cart/commit", s.requireAuth(s.handleCommitCart))

	handle("GET /expenses/edit", s.requireAuth(s.handleEditPage))
	handle("POST /expenses/{id}/edit", s.requireAuth(s.handleEditExpense))
	handle("GET /expenses/delete", s.requireAuth(s.handleDeletePage))
	handle("POST /expenses/{id}/delete", s.requireAuth(s.handleDeleteExpense))
	handle("POST /expenses/clear", s.requireAuth(s.handleClearMonth))

	handle("GET /search", s.requireAuth(s.handleSearch))
	return nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.stopBackground()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) stopBackground() {
	s.limiter.Stop()
	s.caches.Stop()
}

// withLedger loads the document and runs fn while holding the ledger lock.
// Reads take the lock too, as loading a missing document writes it.
func (s *Server) withLedger(ctx context.Context, fn func(doc *core.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.ledger.Load(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

// page assembles the common template data and drains pending flashes.
func (s *Server) page(sess *Session, title, nav string, body any) page {
	p := page{Title: title, Nav: nav, Currency: s.currency, Body: body}
	if sess != nil {
		p.User = sess.Username
		p.Flashes = s.sessions.PopFlashes(sess.ID)
	}
	return p
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	t, ok := s.pages[name]
	if !ok {
		reqLogger(r, log.ComponentTemplate).ErrorContext(r.Context(), "Unknown template", "template", name)
		InternalServerError("Page not available").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		reqLogger(r, log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		InternalServerError("Error rendering page").Write(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// serverError logs err and renders the error page.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, sess *Session, msg string, err error) {
	reqLogger(r, log.ComponentLedger).ErrorContext(r.Context(), msg,
		log.FieldPath, r.URL.Path,
		log.FieldError, err)
	s.render(w, r, http.StatusInternalServerError, "error",
		s.page(sess, "Error", "", errorView{Status: http.StatusInternalServerError, Message: msg}))
}

// redirectWithFlash queues a message for sess and redirects to location.
func (s *Server) redirectWithFlash(w http.ResponseWriter, sess *Session, location string, kind FlashKind, msg string) {
	s.sessions.AddFlash(sess.ID, kind, msg)
	NewResponse().Redirect(location).Write(w)
}

func (s *Server) monthPicker(doc *core.Document, selected, action string) monthPicker {
	return monthPicker{
		Options:  core.MonthOptions(doc, s.ledger.Now()),
		Selected: selected,
		Action:   action,
	}
}

// selectedMonth reads ?month= and defaults to the first offered month,
// the newest one on record.
func (s *Server) selectedMonth(r *http.Request, doc *core.Document) string {
	opts := core.MonthOptions(doc, s.ledger.Now())
	fallback := s.ledger.CurrentMonth()
	if len(opts) > 0 {
		fallback = opts[0].Key
	}
	return ParseMonthParam(r.URL.Query(), fallback)
}

func reqLogger(r *http.Request, component string) *log.Logger {
	return log.FromContext(r.Context()).WithComponent(component)
}

func monthName(key string) string {
	name, err := core.MonthDisplayName(key)
	if err != nil {
		return key
	}
	return name
}
