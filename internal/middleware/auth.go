package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Claims represents JWT claims
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// UserLoader resolves the user named by a token
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// TokenDenylist reports revoked token ids
type TokenDenylist interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Authenticator issues and verifies bearer tokens
type Authenticator struct {
	secret   []byte
	ttl      time.Duration
	users    UserLoader
	denylist TokenDenylist
}

// NewAuthenticator creates an Authenticator. denylist may be nil.
func NewAuthenticator(secret string, ttl time.Duration, users UserLoader, denylist TokenDenylist) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		ttl:      ttl,
		users:    users,
		denylist: denylist,
	}
}

// GenerateToken generates a signed JWT for user
func (a *Authenticator) GenerateToken(user *models.User) (string, *Claims, error) {
	now := time.Now()
	roleName := ""
	if user.Role != nil {
		roleName = user.Role.Name
	}

	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   roleName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken validates a token string and returns its claims
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Middleware authenticates the request and stores the user in its context.
// The user is reloaded on every request so deactivation and role edits apply immediately.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortJSON(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortJSON(c, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := a.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := c.Request.Context()
		if a.denylist != nil {
			revoked, err := a.denylist.IsTokenRevoked(ctx, claims.ID)
			if err != nil {
				abortJSON(c, http.StatusInternalServerError, "Authentication service unavailable")
				return
			}
			if revoked {
				abortJSON(c, http.StatusUnauthorized, "Token has been revoked")
				return
			}
		}

		user, err := a.users.GetUserByID(ctx, claims.UserID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			abortJSON(c, http.StatusInternalServerError, "Authentication service unavailable")
			return
		}
		if err != nil || user == nil || !user.Active {
			abortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx = WithUser(ctx, user)
		ctx = WithClaims(ctx, claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
