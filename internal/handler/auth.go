package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/retail-analytics/internal/auth"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/service"
)

// Authenticator is the part of service.AuthService the handlers use.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler serves registration, login, logout and the current user.
type AuthHandler struct {
	auth       Authenticator
	sessionTTL time.Duration
	// secureCookie sets the Secure flag; enable behind HTTPS.
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(a Authenticator, sessionTTL time.Duration, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         a,
		sessionTTL:   sessionTTL,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleRegister creates a login.
//
// HTTP: POST /api/auth/register {"username","password","email"}
// 201 with the user; 400 on missing fields; 409 if the username is taken.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /api/auth/login {"username","password"}
//
// The token goes into an HttpOnly cookie: JavaScript cannot read it, so an
// XSS bug cannot steal the session. SameSite=Lax keeps it off cross-site
// POSTs.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, res.User)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /api/auth/logout
//
// Tokens are stateless, so logging out means deleting the cookie; the token
// itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the logged-in user's profile.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
