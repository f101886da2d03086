package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/access"
	"github.com/dmitrijs2005/hostelpay/internal/server/auth"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(common.AuthorizationHeaderName)
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return "", true
	}
	return strings.TrimSpace(strings.TrimPrefix(header, common.BearerPrefix)), true
}

// authenticate resolves the bearer token into an access.Actor on the request
// context. With required set, requests without a token are rejected; an
// invalid token is always rejected.
func (h *Handler) authenticate(secret []byte, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := bearerToken(r)
			if !present {
				if required {
					writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(token, secret)
			if err != nil {
				h.fail(w, r, err)
				return
			}

			ctx := access.WithActor(r.Context(), access.Actor{ID: claims.AccountID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentAccount swaps the token's claims for the stored account state, so a
// deactivated account or a demoted administrator loses access before the
// access token expires.
func (h *Handler) currentAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claimed, ok := access.ActorFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
			return
		}
		actor, err := h.accounts.CurrentActor(r.Context(), claimed)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(access.WithActor(r.Context(), actor)))
	})
}

func requireAdministrator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := access.ActorFromContext(r.Context())
		if !ok || !actor.IsAdministrator() {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "administrator role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
