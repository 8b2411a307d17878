package http

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"household/internal/log"
)

// Authenticator checks the single configured credential pair. Only the
// bcrypt hash of the password is kept in memory.
type Authenticator struct {
	username string
	hash     []byte
}

// NewAuthenticator hashes password with cost. A cost of zero means
// bcrypt.DefaultCost.
func NewAuthenticator(username, password string, cost int) (*Authenticator, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Authenticator{username: username, hash: hash}, nil
}

// Check reports whether the pair matches. The password hash is always
// compared so a wrong username takes as long as a wrong password.
func (a *Authenticator) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userOK && passOK
}

type authedHandler func(http.ResponseWriter, *http.Request, *Session)

// requireAuth redirects requests without a valid session to the login page.
func (s *Server) requireAuth(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.FromRequest(r)
		if err != nil {
			reqLogger(r, log.ComponentAuth).DebugContext(r.Context(), "Unauthenticated request",
				log.FieldPath, r.URL.Path,
				log.FieldError, err)
			NewResponse().Redirect("/login").Write(w)
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.FromRequest(r); err == nil {
		NewResponse().Redirect("/").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "login", s.page(nil, "Login", "", loginView{}))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	logger := reqLogger(r, log.ComponentAuth)

	form := decodeLoginForm(r.PostForm)
	if err := s.validate.Struct(form); err != nil {
		s.metrics.RecordLogin(false)
		s.render(w, r, http.StatusUnprocessableEntity, "login", s.page(nil, "Login", "",
			loginView{Username: form.Username, Error: "Enter username and password"}))
		return
	}

	if !s.auth.Check(form.Username, form.Password) {
		s.metrics.RecordLogin(false)
		logger.WarnContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin,
			log.FieldClientIP, clientIP(r),
			log.FieldSuccess, false)
		s.render(w, r, http.StatusUnauthorized, "login", s.page(nil, "Login", "",
			loginView{Username: form.Username, Error: "Username or Password is Incorrect"}))
		return
	}

	sess, err := s.sessions.Issue(w, r, form.Username)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue session",
			log.FieldError, err)
		InternalServerError("Could not start session").Write(w)
		return
	}
	s.metrics.RecordLogin(true)
	logger.InfoContext(r.Context(), "Login successful",
		log.FieldOperation, log.OpLogin,
		log.FieldClientIP, clientIP(r),
		log.FieldSuccess, true)

	s.sessions.AddFlash(sess.ID, FlashSuccess, "Login Successful")
	NewResponse().Redirect("/").Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess *Session) {
	s.sessions.End(w, r, sess)
	reqLogger(r, log.ComponentAuth).InfoContext(r.Context(), "Logged out",
		log.FieldOperation, log.OpLogout)
	NewResponse().Redirect("/login").Write(w)
}

// loginLimited answers rate-limited login attempts.
func (s *Server) loginLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordLogin(false)
	reqLogger(r, log.ComponentRateLimit).WarnContext(r.Context(), "Login rate limit exceeded",
		log.FieldClientIP, clientIP(r))
	TooManyRequestsError("60").Write(w)
}
