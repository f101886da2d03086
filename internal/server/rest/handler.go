// Package rest exposes the account and payment services over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/access"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// multipart overhead allowed on top of the proof size limit
const formOverhead = 1 << 20

type Accounts interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
	VerifyEmail(ctx context.Context, token string) (*models.Account, error)
	ResendVerification(ctx context.Context, actor *access.Actor, login string) error
	Login(ctx context.Context, login, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Get(ctx context.Context, actor access.Actor, id string) (*models.Account, error)
	SetActive(ctx context.Context, actor access.Actor, id string, active bool) (*models.Account, error)
	TokenHistory(ctx context.Context, actor access.Actor, accountID string) ([]*models.VerificationToken, error)
	CurrentActor(ctx context.Context, claimed access.Actor) (access.Actor, error)
}

type Payments interface {
	Create(ctx context.Context, actor access.Actor, req services.CreatePaymentRequest) (*models.Payment, error)
	List(ctx context.Context, actor access.Actor, accountID string, status models.PaymentStatus) ([]*models.Payment, error)
	Get(ctx context.Context, actor access.Actor, id string) (*models.Payment, error)
	Submit(ctx context.Context, actor access.Actor, id string, req services.SubmitRequest) (*models.Payment, error)
	Verify(ctx context.Context, actor access.Actor, id, transactionID string) (*models.Payment, error)
	Reject(ctx context.Context, actor access.Actor, id, reason string) (*models.Payment, error)
	ProofURL(ctx context.Context, actor access.Actor, id string) (string, error)
}

type Options struct {
	SecretKey      string
	LoginURL       string
	MaxProofSize   int64
	AllowedOrigins []string
	// Files, when set, answers GET /files/* for locally stored proofs.
	Files http.Handler
}

type Handler struct {
	accounts  Accounts
	payments  Payments
	secret    []byte
	loginURL  string
	maxUpload int64
	origins   []string
	files     http.Handler
	now       func() time.Time
	log       logging.Logger
}

func NewHandler(accounts Accounts, payments Payments, opts Options, log logging.Logger) *Handler {
	return &Handler{
		accounts:  accounts,
		payments:  payments,
		secret:    []byte(opts.SecretKey),
		loginURL:  opts.LoginURL,
		maxUpload: opts.MaxProofSize,
		origins:   opts.AllowedOrigins,
		files:     opts.Files,
		now:       time.Now,
		log:       log.With("module", "rest"),
	}
}

// Routes builds the chi router with every endpoint mounted.
func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	if h.files != nil {
		r.Handle("/files/*", http.StripPrefix("/files", h.files))
	}

	r.Post("/register", h.handleRegister)
	r.Get("/verify-email/{token}", h.handleVerifyEmail)
	r.Post("/login", h.handleLogin)
	r.Post("/token/refresh", h.handleRefresh)
	r.With(h.authenticate(h.secret, false)).Post("/resend-verification", h.handleResend)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate(h.secret, true))
		r.Use(h.currentAccount)

		r.Get("/me", h.handleMe)

		r.Get("/payments", h.handleListPayments)
		r.Get("/payments/{id}/detail", h.handlePaymentDetail)
		r.Post("/payments/{id}/pay", h.handlePay)
		r.Get("/payments/{id}/confirmation", h.handleConfirmation)
		r.Get("/payments/{id}/proof", h.handleProof)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdministrator)
			r.Post("/payments", h.handleCreatePayment)
			r.Post("/payments/{id}/verify", h.handleVerifyPayment)
			r.Post("/payments/{id}/reject", h.handleRejectPayment)
			r.Post("/accounts/{id}/reactivate", h.handleSetActive(true))
			r.Post("/accounts/{id}/deactivate", h.handleSetActive(false))
			r.Get("/accounts/{id}/tokens", h.handleTokenHistory)
		})
	})

	return r
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return common.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func actorFrom(r *http.Request) access.Actor {
	actor, _ := access.ActorFromContext(r.Context())
	return actor
}
