package rest

import (
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/server/access"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	UserName        string `json:"username"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type accountView struct {
	ID            string      `json:"id"`
	UserName      string      `json:"username"`
	Email         string      `json:"email"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Phone         string      `json:"phone,omitempty"`
	Role          models.Role `json:"role"`
	Active        bool        `json:"active"`
	EmailVerified bool        `json:"email_verified"`
	CreatedAt     time.Time   `json:"created_at"`
}

func newAccountView(a *models.Account) accountView {
	return accountView{
		ID:            a.ID,
		UserName:      a.UserName,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Role:          a.Role,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

type tokenPairView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	account, err := h.accounts.Register(r.Context(), services.RegisterRequest{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		UserName:        req.UserName,
		Email:           req.Email,
		Phone:           req.Phone,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"account": newAccountView(account),
		"message": "registration successful; check your email for the verification link",
		"next":    "/registration-success",
	})
}

// handleVerifyEmail redirects to the login page on success. Failures are
// rendered with the specific token error.
func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.accounts.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.fail(w, r, err)
		return
	}

	target, err := url.Parse(h.loginURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := target.Query()
	q.Set("verified", "1")
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

type resendRequest struct {
	Login string `json:"login"`
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var actor *access.Actor
	if a, ok := access.ActorFromContext(r.Context()); ok {
		actor = &a
	}

	if err := h.accounts.ResendVerification(r.Context(), actor, req.Login); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"message": "a new verification link has been sent"})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.accounts.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tokenPairView{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.accounts.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tokenPairView{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	account, err := h.accounts.Get(r.Context(), actor, actor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newAccountView(account))
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := h.accounts.SetActive(r.Context(), actorFrom(r), chi.URLParam(r, "id"), active)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newAccountView(account))
	}
}

// tokenView omits the token id: a live id is still a credential.
type tokenView struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func tokenState(t *models.VerificationToken, now time.Time) string {
	switch {
	case t.Verified:
		return "verified"
	case t.Invalidated:
		return "invalidated"
	case t.Expired(now):
		return "expired"
	default:
		return "live"
	}
}

func (h *Handler) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.accounts.TokenHistory(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.now()
	out := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenView{State: tokenState(t, now), CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}
	writeJSON(w, r, http.StatusOK, out)
}
