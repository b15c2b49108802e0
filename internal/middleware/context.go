package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type contextKey string

const (
	contextKeyUser   contextKey = "auth_user"
	contextKeyClaims contextKey = "auth_claims"
)

// WithUser stores the authenticated user in ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

// UserFromContext returns the authenticated user stored in ctx
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(*models.User)
	return user, ok && user != nil
}

// WithClaims stores the parsed token claims in ctx
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// ClaimsFromContext returns the token claims stored in ctx
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(*Claims)
	return claims, ok && claims != nil
}

// CurrentUser retrieves the authenticated user from the request
func CurrentUser(c *gin.Context) (*models.User, bool) {
	return UserFromContext(c.Request.Context())
}
