package middleware

import (
	"net/http"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/tixgo/tix-booking/internal/pkg/jwt"
	"github.com/tixgo/tix-booking/internal/pkg/session"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/response"
	"github.com/tixgo/tix-booking/pkg/status"
)

type sessionClaims struct {
	SessionID string `json:"sid"`
	gojwt.RegisteredClaims
}

type sessionVerifier struct {
	jsonWebToken *jwt.JSONWebToken
	store        session.Store
	requiredRole string
}

func (m *sessionVerifier) verify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		bearer := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(bearer, "Bearer ")
		if !found || tokenString == "" {
			response.JSON(w, http.StatusUnauthorized, response.RESTEnvelope{
				Status:  status.UNAUTHORIZED,
				Message: "authorization bearer token is required",
			})
			return
		}

		claims := &sessionClaims{}
		if err := m.jsonWebToken.Parse(tokenString, claims); err != nil {
			ae := errors.Destruct(err)
			response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
				Status:  ae.Status,
				Message: ae.Message,
			})
			return
		}

		acc, err := m.store.Get(ctx, claims.SessionID)
		if err != nil {
			ae := errors.Destruct(err)
			response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
				Status:  ae.Status,
				Message: ae.Message,
			})
			return
		}

		if m.requiredRole != "" && acc.Role != m.requiredRole {
			response.JSON(w, http.StatusForbidden, response.RESTEnvelope{
				Status:  status.FORBIDDEN,
				Message: "this resource requires a different role",
			})
			return
		}

		next(w, r.WithContext(session.ContextWithAccount(ctx, acc)))
	}
}

type CustomerSession struct {
	sessionVerifier
}

func NewCustomerSessionMiddleware(jsonWebToken *jwt.JSONWebToken, store session.Store) *CustomerSession {
	return &CustomerSession{
		sessionVerifier{
			jsonWebToken: jsonWebToken,
			store:        store,
			requiredRole: session.RoleCustomer,
		},
	}
}

func (m *CustomerSession) Verify(next http.HandlerFunc) http.HandlerFunc {
	return m.verify(next)
}

type AdminSession struct {
	sessionVerifier
}

func NewAdminSessionMiddleware(jsonWebToken *jwt.JSONWebToken, store session.Store) *AdminSession {
	return &AdminSession{
		sessionVerifier{
			jsonWebToken: jsonWebToken,
			store:        store,
			requiredRole: session.RoleAdmin,
		},
	}
}

func (m *AdminSession) Verify(next http.HandlerFunc) http.HandlerFunc {
	return m.verify(next)
}
