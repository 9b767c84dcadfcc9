package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go-tour-booking/internal/model"
	"go-tour-booking/internal/service"
)

// TokenCookieName is the cookie carrying the session token for browser clients.
const TokenCookieName = "jwt"

type tokenVerifier interface {
	Verify(token string) (service.TokenClaims, error)
}

type identityLoader interface {
	FindByID(ctx context.Context, id string, opts model.ReadOptions) (model.User, error)
}

type guardRecorder interface {
	GuardRejected(reason string)
}

type nopGuardRecorder struct{}

func (nopGuardRecorder) GuardRejected(string) {}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	tokens   tokenVerifier
	users    identityLoader
	logger   *slog.Logger
	recorder guardRecorder
}

func NewAuthMiddleware(tokens tokenVerifier, users identityLoader, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		tokens:   tokens,
		users:    users,
		logger:   logger,
		recorder: nopGuardRecorder{},
	}
}

func (m *AuthMiddleware) WithRecorder(r guardRecorder) *AuthMiddleware {
	if r != nil {
		m.recorder = r
	}
	return m
}

// ProtectedPipeline is a middleware chain whose first stage is always the
// session guard. Role guards can only be appended to it, so a role check
// never runs without a resolved identity.
type ProtectedPipeline struct {
	auth   *AuthMiddleware
	stages []func(http.Handler) http.Handler
}

// Protect starts a pipeline that resolves the caller's identity.
func (m *AuthMiddleware) Protect() *ProtectedPipeline {
	return &ProtectedPipeline{
		auth:   m,
		stages: []func(http.Handler) http.Handler{m.sessionGuard},
	}
}

// RestrictTo returns a copy of the pipeline that also requires one of roles.
// It panics on an empty or unknown role list, which surfaces at router
// construction.
func (p *ProtectedPipeline) RestrictTo(roles ...model.Role) *ProtectedPipeline {
	if len(roles) == 0 {
		panic("middleware: RestrictTo needs at least one role")
	}

	allowed := make(map[model.Role]struct{}, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			panic(fmt.Sprintf("middleware: unknown role %q", role))
		}
		allowed[role] = struct{}{}
	}

	stages := make([]func(http.Handler) http.Handler, len(p.stages), len(p.stages)+1)
	copy(stages, p.stages)
	stages = append(stages, p.auth.roleGuard(allowed))

	return &ProtectedPipeline{auth: p.auth, stages: stages}
}

// Handler wraps next in every stage, first stage outermost. Its signature
// matches chi's Use and With.
func (p *ProtectedPipeline) Handler(next http.Handler) http.Handler {
	for i := len(p.stages) - 1; i >= 0; i-- {
		next = p.stages[i](next)
	}
	return next
}

func (m *AuthMiddleware) sessionGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			m.reject(w, r, "not_authenticated", service.Fail(model.ErrNotAuthenticated, ""))
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, model.ErrTokenExpired) {
				reason = "token_expired"
			}
			m.reject(w, r, reason, err)
			return
		}

		user, err := m.users.FindByID(r.Context(), claims.Subject, model.ActiveOnly)
		if errors.Is(err, model.ErrUserNotFound) {
			m.reject(w, r, "user_no_longer_exists", service.Fail(model.ErrUserNoLongerExists, ""))
			return
		}
		if err != nil {
			m.logger.ErrorContext(r.Context(), "session guard lookup failed", "error", err)
			writeError(w, service.Fail(model.ErrOperationFailed, ""))
			return
		}

		if user.ChangedPasswordAfter(claims.IssuedAt) {
			m.reject(w, r, "stale_password_change", service.Fail(model.ErrStalePasswordChange, ""))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
	})
}

func (m *AuthMiddleware) roleGuard(allowed map[model.Role]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := IdentityFromContext(r.Context())
			if !ok {
				m.reject(w, r, "not_authenticated", service.Fail(model.ErrNotAuthenticated, ""))
				return
			}

			if _, permitted := allowed[user.Role]; !permitted {
				m.reject(w, r, "forbidden", service.Fail(model.ErrForbidden, ""))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string, err error) {
	m.recorder.GuardRejected(reason)
	m.logger.DebugContext(r.Context(), "request rejected by guard", "reason", reason)
	writeError(w, err)
}

// bearerToken reads the Authorization header first and falls back to the
// session cookie.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token
		}
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func WithIdentity(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, identityContextKey, user)
}

// IdentityFromContext returns the identity resolved by the session guard.
func IdentityFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(identityContextKey).(model.User)
	return user, ok
}
