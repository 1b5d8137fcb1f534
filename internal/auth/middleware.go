package auth

import (
	"context"
	"net/http"
)

// CookieName is the cookie that carries the session token.
const CookieName = "token"

// contextKey is unexported so no other package can read or overwrite the
// session stored in a request context.
type contextKey struct{}

var sessionKey contextKey

// RequireAuth rejects requests without a valid session cookie with 401 and
// otherwise stores the Session in the request context.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromRequest(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the caller's session, or (Session{}, false) for
// an anonymous request.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok && sess.UserID != ""
}

func sessionFromRequest(r *http.Request, tokens *TokenService) (Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Session{}, err
	}
	return tokens.Validate(cookie.Value)
}
