package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"household/internal/core"
	"household/internal/metrics"
	"household/internal/middleware/ratelimit"
	"household/internal/services"
	"household/internal/storage"
	"household/internal/storage/memory"
	"household/internal/storage/sqlite"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	cookie *http.Cookie
}

func newTestEnv(t *testing.T, tweak ...func(*Options)) *testEnv {
	t.Helper()
	return newTestEnvFrom(t, memory.New(), tweak...)
}

// newTestEnvFrom serves store, which may already hold a document.
func newTestEnvFrom(t *testing.T, store *memory.Store, tweak ...func(*Options)) *testEnv {
	t.Helper()
	return &testEnv{t: t, srv: newTestServer(t, store, tweak...), store: store}
}

func newTestServer(t *testing.T, backend storage.Backend, tweak ...func(*Options)) *Server {
	t.Helper()
	now := func() time.Time { return testNow }
	ledger := services.NewLedgerService(backend, services.WithClock(now))

	opts := Options{
		Addr:           ":0",
		Username:       "demo",
		Password:       "demo123",
		SessionSecret:  "test-secret",
		CurrencySymbol: "Rs",
		BcryptCost:     bcrypt.MinCost,
		Storage:        backend,
		Metrics:        metrics.New(),
		Now:            now,
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	srv, err := NewServer(opts, ledger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func (e *testEnv) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

// follow asserts a 303 and fetches its target.
func (e *testEnv) follow(rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	e.t.Helper()
	require.Equal(e.t, http.StatusSeeOther, rec.Code, rec.Body.String())
	return e.do(http.MethodGet, rec.Header().Get("Location"), nil)
}

func (e *testEnv) login() *httptest.ResponseRecorder {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/login", url.Values{"username": {"demo"}, "password": {"demo123"}})
	require.Equal(e.t, http.StatusSeeOther, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			e.cookie = c
		}
	}
	require.NotNil(e.t, e.cookie, "login sets the session cookie")
	return rec
}

func (e *testEnv) setBalance(amount string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/balance", url.Values{"month": {"2026-03"}, "balance": {amount}})
}

func (e *testEnv) addToCart(category, item, qty, price string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/cart", url.Values{
		"category": {category},
		"item":     {item},
		"quantity": {qty},
		"price":    {price},
	})
}

// seed logs in, sets a balance of 5000 and commits Milk (120) and Onion (60).
func (e *testEnv) seed() {
	e.t.Helper()
	e.login()
	require.Equal(e.t, http.StatusSeeOther, e.setBalance("5000").Code)
	require.Equal(e.t, http.StatusSeeOther, e.addToCart("Dairy Products", "Milk", "2", "60").Code)
	require.Equal(e.t, http.StatusSeeOther, e.addToCart("Vegetables", "Onion", "1.5", "40").Code)
	require.Equal(e.t, http.StatusSeeOther, e.do(http.MethodPost, "/cart/commit", nil).Code)
}

func (e *testEnv) document() *core.Document {
	e.t.Helper()
	doc, err := core.DecodeDocument(e.store.Bytes())
	require.NoError(e.t, err)
	return doc
}

func TestRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/balance", "/expenses/new", "/expenses/edit", "/expenses/delete", "/search"} {
		rec := env.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}

	rec := env.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Login Page")
	assert.Zero(t, env.store.Saves(), "nothing is written before login")
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login", url.Values{"username": {"demo"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username or Password is Incorrect")
	assert.Empty(t, rec.Result().Cookies())

	rec = env.do(http.MethodPost, "/login", url.Values{"username": {"demo"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter username and password")
}

func TestLoginShowsOverview(t *testing.T) {
	env := newTestEnv(t)
	page := env.follow(env.login())

	assert.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	assert.Contains(t, body, "Login Successful")
	assert.Contains(t, body, "March 2026")
	assert.Contains(t, body, "No data for this month.")
	assert.Contains(t, body, "No Expenses")

	// the login page sends an authenticated user home
	rec := env.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.LoginLimit = ratelimit.Config{RequestsPerSecond: 0.01, Burst: 1}
	})
	form := url.Values{"username": {"demo"}, "password": {"wrong"}}

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/login", form).Code)
	rec := env.do(http.MethodPost, "/login", form)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	rec = env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["templates"])
	assert.Equal(t, "ok", ready.Checks["storage"])
}

func TestReadyReportsDocumentVersion(t *testing.T) {
	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "household.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	srv := newTestServer(t, repo)

	ready := func() map[string]any {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			Checks map[string]any `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Checks
	}

	checks := ready()
	assert.Equal(t, "ok", checks["storage"])
	assert.EqualValues(t, 0, checks["document_version"])

	_, err = srv.ledger.Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, ready()["document_version"])
}

func TestSetBalanceOnce(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.setBalance("5000")
	assert.Equal(t, "/balance", rec.Header().Get("Location"))
	body := env.follow(rec).Body.String()
	assert.Contains(t, body, "Saved")
	assert.Contains(t, body, "Rs 5,000")
	assert.Contains(t, body, "Balance already set")
	saves := env.store.Saves()

	body = env.follow(env.setBalance("9000")).Body.String()
	assert.Contains(t, body, "Balance already set")
	assert.NotContains(t, body, "Rs 9,000")
	assert.Equal(t, saves, env.store.Saves(), "a second balance is not written")
	assert.Equal(t, "5000", env.document().Months["2026-03"].StartingBalance.String())
}

func TestSetBalanceRejectsOtherMonths(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do(http.MethodPost, "/balance", url.Values{"month": {"2026-02"}, "balance": {"100"}})
	assert.Equal(t, "/balance?month=2026-02", rec.Header().Get("Location"))
	body := env.follow(rec).Body.String()
	assert.Contains(t, body, "Only current month is editable")
	_, ok := env.document().Month("2026-02")
	assert.False(t, ok)

	body = env.follow(env.setBalance("-5")).Body.String()
	assert.Contains(t, body, "Balance must be at least 0")
}

func TestCartCommitFlow(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.setBalance("5000")

	env.addToCart("Dairy Products", "Milk", "2", "60")
	body := env.follow(env.addToCart("Vegetables", "Onion", "1.5", "40")).Body.String()
	assert.Contains(t, body, "Added")
	assert.Contains(t, body, "Milk")
	assert.Contains(t, body, "Onion")
	assert.Contains(t, body, "Total: Rs 180")

	body = env.follow(env.addToCart("Vegetables", "Garlic", "1", "0.5")).Body.String()
	assert.Contains(t, body, "Price must be at least 1")
	assert.NotContains(t, body, "Garlic")

	body = env.follow(env.do(http.MethodPost, "/cart/commit", nil)).Body.String()
	assert.Contains(t, body, "All saved")
	assert.Contains(t, body, "Cart is empty")

	month, ok := env.document().Month("2026-03")
	require.True(t, ok)
	require.Len(t, month.Expenses, 2)
	assert.Equal(t, "Milk", month.Expenses[0].Item)
	assert.Equal(t, "15-03-2026", month.Expenses[0].Date)
	assert.Equal(t, "120", month.Expenses[0].Amount.String())
	assert.Equal(t, "1.5", month.Expenses[1].Quantity.String())
	assert.Equal(t, "60", month.Expenses[1].Amount.String())

	body = env.do(http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, body, "Spent:")
	assert.Contains(t, body, "Rs 180")
	assert.Contains(t, body, "Rs 4,820")
}

func TestCartRemoveEntry(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.setBalance("5000")
	env.addToCart("Dairy Products", "Milk", "2", "60")
	env.addToCart("Vegetables", "Onion", "1", "40")

	body := env.follow(env.do(http.MethodPost, "/cart/0/delete", nil)).Body.String()
	assert.Contains(t, body, "Removed")
	assert.NotContains(t, body, "Milk")
	assert.Contains(t, body, "Total: Rs 40")

	body = env.follow(env.do(http.MethodPost, "/cart/7/delete", nil)).Body.String()
	assert.Contains(t, body, "No such cart entry")
}

func TestCommitWithoutBalance(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.addToCart("Dairy Products", "Milk", "1", "60")

	body := env.follow(env.do(http.MethodPost, "/cart/commit", nil)).Body.String()
	assert.Contains(t, body, "Set balance first")
	assert.Equal(t, 1, env.srv.sessions.ActiveCarts(), "the cart is kept")
	assert.Empty(t, env.document().Months)
}

func TestCommitTwiceSavesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.setBalance("5000")
	env.addToCart("Dairy Products", "Milk", "2", "60")
	env.addToCart("Vegetables", "Onion", "1", "40")

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(http.MethodPost, "/cart/commit", nil).Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusSeeOther, http.StatusSeeOther}, codes)
	assert.Len(t, env.document().Months["2026-03"].Expenses, 2)

	body := env.follow(env.do(http.MethodPost, "/cart/commit", nil)).Body.String()
	assert.Contains(t, body, "Cart is empty")
	assert.Len(t, env.document().Months["2026-03"].Expenses, 2)
}

func TestCommitEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	body := env.follow(env.do(http.MethodPost, "/cart/commit", nil)).Body.String()
	assert.Contains(t, body, "Cart is empty")
}

func TestEditExpense(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	milk := env.document().Months["2026-03"].Expenses[0]

	rec := env.do(http.MethodGet, "/expenses/edit?month=2026-03&id="+milk.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/expenses/"+milk.ID+"/edit")

	rec = env.do(http.MethodPost, "/expenses/"+milk.ID+"/edit", url.Values{
		"month":    {"2026-03"},
		"quantity": {"3"},
		"amount":   {"180"},
	})
	assert.Equal(t, "/expenses/edit?id="+milk.ID+"&month=2026-03", rec.Header().Get("Location"))
	assert.Contains(t, env.follow(rec).Body.String(), "Updated")

	got := env.document().Months["2026-03"].Expenses[0]
	assert.Equal(t, "3", got.Quantity.String())
	assert.Equal(t, "180", got.Amount.String())
	assert.Equal(t, milk.Date, got.Date)

	rec = env.do(http.MethodPost, "/expenses/missing/edit", url.Values{
		"month":    {"2026-03"},
		"quantity": {"1"},
		"amount":   {"1"},
	})
	assert.Contains(t, env.follow(rec).Body.String(), "Expense not found")

	rec = env.do(http.MethodPost, "/expenses/"+milk.ID+"/edit", url.Values{
		"month":    {"2026-03"},
		"quantity": {"1"},
		"amount":   {"lots"},
	})
	assert.Contains(t, env.follow(rec).Body.String(), "Amount must be a number")
}

func TestDeleteExpense(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	milk := env.document().Months["2026-03"].Expenses[0]

	rec := env.do(http.MethodPost, "/expenses/"+milk.ID+"/delete", url.Values{"month": {"2026-03"}})
	assert.Equal(t, "/expenses/delete?month=2026-03", rec.Header().Get("Location"))
	body := env.follow(rec).Body.String()
	assert.Contains(t, body, "Deleted")
	assert.Contains(t, body, "This action cannot be undone.")

	expenses := env.document().Months["2026-03"].Expenses
	require.Len(t, expenses, 1)
	assert.Equal(t, "Onion", expenses[0].Item)

	rec = env.do(http.MethodPost, "/expenses/"+milk.ID+"/delete", url.Values{"month": {"2026-03"}})
	assert.Contains(t, env.follow(rec).Body.String(), "Expense not found")

	rec = env.do(http.MethodPost, "/expenses/"+expenses[0].ID+"/delete", url.Values{})
	assert.Equal(t, "/expenses/delete", rec.Header().Get("Location"))
	assert.Contains(t, env.follow(rec).Body.String(), "Select a month")
}

const storedWithoutIDs = `{"months": {"2026-03": {"starting_balance": 5000, "expenses": [
    {"date": "14-03-2026", "item": "Milk", "quantity": 2, "amount": 120},
    {"date": "15-03-2026", "item": "Onion", "quantity": 1, "amount": 40}
]}}}`

var (
	deleteActionID = regexp.MustCompile(`action="/expenses/([0-9a-f-]{36})/delete"`)
	editOptionID   = regexp.MustCompile(`<option value="([0-9a-f-]{36})"`)
)

func TestEditAndDeleteDocumentWithoutIDs(t *testing.T) {
	t.Run("delete", func(t *testing.T) {
		env := newTestEnvFrom(t, memory.NewWithData([]byte(storedWithoutIDs)))
		env.login()

		page := env.do(http.MethodGet, "/expenses/delete?month=2026-03", nil).Body.String()
		ids := deleteActionID.FindAllStringSubmatch(page, -1)
		require.Len(t, ids, 2, page)

		rec := env.do(http.MethodPost, "/expenses/"+ids[0][1]+"/delete", url.Values{"month": {"2026-03"}})
		assert.Contains(t, env.follow(rec).Body.String(), "Deleted")

		expenses := env.document().Months["2026-03"].Expenses
		require.Len(t, expenses, 1)
		assert.Equal(t, "Onion", expenses[0].Item)
		assert.Equal(t, ids[1][1], expenses[0].ID, "the remaining id is persisted unchanged")
	})

	t.Run("edit", func(t *testing.T) {
		env := newTestEnvFrom(t, memory.NewWithData([]byte(storedWithoutIDs)))
		env.login()

		page := env.do(http.MethodGet, "/expenses/edit?month=2026-03", nil).Body.String()
		ids := editOptionID.FindAllStringSubmatch(page, -1)
		require.Len(t, ids, 2, page)

		rec := env.do(http.MethodPost, "/expenses/"+ids[1][1]+"/edit", url.Values{
			"month":    {"2026-03"},
			"quantity": {"2"},
			"amount":   {"80"},
		})
		assert.Contains(t, env.follow(rec).Body.String(), "Updated")

		onion := env.document().Months["2026-03"].Expenses[1]
		assert.Equal(t, ids[1][1], onion.ID)
		assert.Equal(t, "80", onion.Amount.String())
	})
}

func TestClearMonth(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	rec := env.do(http.MethodPost, "/expenses/clear", url.Values{"month": {"2026-03"}})
	assert.Contains(t, env.follow(rec).Body.String(), "All expenses of March 2026 deleted")

	month, ok := env.document().Month("2026-03")
	require.True(t, ok)
	assert.Empty(t, month.Expenses)
	assert.Equal(t, "5000", month.StartingBalance.String())

	rec = env.do(http.MethodPost, "/expenses/clear", url.Values{"month": {"2025-12"}})
	assert.Contains(t, env.follow(rec).Body.String(), "No data")
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	tests := []struct {
		name     string
		query    string
		contains []string
		excludes []string
	}{
		{
			name:     "whole month",
			query:    "month=2026-03",
			contains: []string{"Milk", "Onion", "Total: <strong>Rs 180</strong>"},
		},
		{
			name:     "by date",
			query:    "month=2026-03&date=2026-03-15",
			contains: []string{"Milk", "Onion"},
		},
		{
			name:     "date without expenses",
			query:    "month=2026-03&date=2026-03-14",
			contains: []string{"No results"},
			excludes: []string{"Milk"},
		},
		{
			name:     "fuzzy item",
			query:    "month=2026-03&q=mlk",
			contains: []string{"Milk", "Rs 120"},
			excludes: []string{"Onion"},
		},
		{
			name:     "invalid date",
			query:    "month=2026-03&date=2026-13-01",
			contains: []string{"Invalid date"},
		},
		{
			name:     "month without record",
			query:    "month=2025-01",
			contains: []string{"No data"},
			excludes: []string{"Milk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/search?"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			body := rec.Body.String()
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/login", url.Values{"username": {"demo"}, "password": {"nope"}})
	env.login()

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `household_login_attempts_total{result="failure"} 1`)
	assert.Contains(t, body, `household_login_attempts_total{result="success"} 1`)
	assert.Contains(t, body, "household_http_requests_total")
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/static/style.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.NotZero(t, rec.Body.Len())
}

func TestCrossOriginPostRejected(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	req := httptest.NewRequest(http.MethodPost, "/balance",
		strings.NewReader(url.Values{"month": {"2026-03"}, "balance": {"10"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://evil.example")
	req.AddCookie(env.cookie)
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, env.store.Saves())
}
