package http

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"household/internal/cache"
	"household/internal/core"
	"household/internal/services"
)

const (
	sessionCookieName = "household_session"
	sessionIssuer     = "household"
	maxSessions       = 1024
)

// ErrNoSession is returned when the request carries no valid session.
var ErrNoSession = errors.New("no valid session")

// Session identifies a logged-in user. The cookie only carries the signed
// id; the cart and pending messages live server side under that id.
type Session struct {
	ID       string
	Username string
	Expires  time.Time
}

// cartItem is an expense staged on the Add Expenses page.
type cartItem struct {
	Category string
	Item     string
	Quantity core.Number
	Price    core.Number
	Amount   core.Number
}

func (c cartItem) entry() services.CartEntry {
	return services.CartEntry{Item: c.Item, Quantity: c.Quantity, Amount: c.Amount}
}

// SessionManager issues and verifies HS256 session tokens and keeps the
// per-session cart and flash messages.
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	carts   *cache.LRUCache[[]cartItem]
	flashes *cache.LRUCache[[]Flash]
}

// NewSessionManager creates a session manager. now may be nil.
func NewSessionManager(secret string, ttl time.Duration, now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     now,
		carts:   cache.NewLRUCacheWithClock[[]cartItem](maxSessions, ttl, now),
		flashes: cache.NewLRUCacheWithClock[[]Flash](maxSessions, 10*time.Minute, now),
	}
}

// Register hands the session caches to m for periodic expiry.
func (sm *SessionManager) Register(m *cache.Manager) {
	m.Register(sm.carts)
	m.Register(sm.flashes)
}

// Issue starts a new session for username and sets its cookie.
func (sm *SessionManager) Issue(w http.ResponseWriter, r *http.Request, username string) (*Session, error) {
	now := sm.now()
	sess := &Session{
		ID:       uuid.NewString(),
		Username: username,
		Expires:  now.Add(sm.ttl),
	}

	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   username,
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.Expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.Expires,
		MaxAge:   int(sm.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// FromRequest verifies the session cookie of r.
func (sm *SessionManager) FromRequest(r *http.Request) (*Session, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(c.Value, &claims, sm.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrNoSession
	}

	sess := &Session{ID: claims.ID, Username: claims.Subject}
	if claims.ExpiresAt != nil {
		sess.Expires = claims.ExpiresAt.Time
	}
	return sess, nil
}

func (sm *SessionManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return sm.secret, nil
}

// End drops the server-side state of sess and expires the cookie.
func (sm *SessionManager) End(w http.ResponseWriter, r *http.Request, sess *Session) {
	if sess != nil {
		sm.carts.Delete(sess.ID)
		sm.flashes.Delete(sess.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// Cart returns a copy of the staged entries of session id.
func (sm *SessionManager) Cart(id string) []cartItem {
	items, _ := sm.carts.Get(id)
	return slices.Clone(items)
}

// AddToCart stages item and returns the new cart size.
func (sm *SessionManager) AddToCart(id string, item cartItem) int {
	next := sm.carts.Update(id, func(cur []cartItem, _ bool) []cartItem {
		return append(slices.Clip(cur), item)
	})
	return len(next)
}

// RemoveFromCart drops the entry at index. It reports false when index is
// out of range.
func (sm *SessionManager) RemoveFromCart(id string, index int) bool {
	removed := false
	sm.carts.Update(id, func(cur []cartItem, _ bool) []cartItem {
		if index < 0 || index >= len(cur) {
			return cur
		}
		removed = true
		return slices.Delete(slices.Clone(cur), index, index+1)
	})
	return removed
}

// DropCommitted removes the first n entries, the ones already saved.
func (sm *SessionManager) DropCommitted(id string, n int) {
	sm.carts.Update(id, func(cur []cartItem, _ bool) []cartItem {
		if n >= len(cur) {
			return nil
		}
		return slices.Clone(cur[n:])
	})
}

// AddFlash queues a message for the next page of session id.
func (sm *SessionManager) AddFlash(id string, kind FlashKind, message string) {
	sm.flashes.Update(id, func(cur []Flash, _ bool) []Flash {
		return append(slices.Clip(cur), Flash{Kind: kind, Message: message})
	})
}

// PopFlashes returns and clears the queued messages of session id.
func (sm *SessionManager) PopFlashes(id string) []Flash {
	var out []Flash
	sm.flashes.Update(id, func(cur []Flash, _ bool) []Flash {
		out = cur
		return nil
	})
	sm.flashes.Delete(id)
	return out
}

// ActiveCarts reports how many sessions hold a cart.
func (sm *SessionManager) ActiveCarts() int {
	return sm.carts.Size()
}

func cartTotal(items []cartItem) core.Number {
	total := core.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}
