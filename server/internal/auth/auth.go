package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const authenticatedKey = "authenticated"

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Gate guards the dashboard behind a single shared password. With no hash
// configured the gate is open.
type Gate struct {
	hash       string
	sessionMgr *scs.SessionManager
	logger     *zap.SugaredLogger
}

// NewGate creates a gate for the given bcrypt hash
func NewGate(hash string, sessionMgr *scs.SessionManager, logger *zap.SugaredLogger) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gate{hash: hash, sessionMgr: sessionMgr, logger: logger}
}

// Enabled reports whether a password is required
func (g *Gate) Enabled() bool {
	return g.hash != ""
}

// Authenticated reports whether the session passed the gate
func (g *Gate) Authenticated(ctx context.Context) bool {
	if !g.Enabled() {
		return true
	}
	return g.sessionMgr.GetBool(ctx, authenticatedKey)
}

// Login checks password and marks the session as authenticated
func (g *Gate) Login(ctx context.Context, password string) (bool, error) {
	if !g.Enabled() {
		return true, nil
	}
	if !CheckPassword(password, g.hash) {
		return false, nil
	}

	// Renew token to prevent session fixation
	if err := g.sessionMgr.RenewToken(ctx); err != nil {
		return false, err
	}
	g.sessionMgr.Put(ctx, authenticatedKey, true)
	return true, nil
}

// Logout destroys the session
func (g *Gate) Logout(ctx context.Context) error {
	return g.sessionMgr.Destroy(ctx)
}

// RequireAuth middleware requires an authenticated session
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Authenticated(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		g.logger.Debugw("unauthenticated request", "path", r.URL.Path)

		switch {
		case r.Header.Get("HX-Request") == "true":
			w.Header().Set("HX-Redirect", "/login")
			w.WriteHeader(http.StatusUnauthorized)
		case strings.HasPrefix(r.URL.Path, "/api/"), strings.HasPrefix(r.URL.Path, "/ws/"):
			http.Error(w, "Authentication required", http.StatusUnauthorized)
		default:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		}
	})
}

// RequireAuthStream is RequireAuth for connections that get hijacked, such as
// websocket upgrades. The session is loaded from the cookie but never written
// back, so the handler sees the raw ResponseWriter.
func (g *Gate) RequireAuthStream(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		var token string
		if cookie, err := r.Cookie(g.sessionMgr.Cookie.Name); err == nil {
			token = cookie.Value
		}
		ctx, err := g.sessionMgr.Load(r.Context(), token)
		if err != nil || !g.Authenticated(ctx) {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
