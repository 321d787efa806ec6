package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	ctxUserID      = "user_id"
	sessionUserKey = "user_id"
)

// AuthClaims is what the external auth service signs. Subject is used when
// userId is absent.
type AuthClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Identity resolves the caller from, in order, a JWT, the cookie session and,
// when allowed, the userId query parameter.
type Identity struct {
	JWTSecret  []byte
	AllowQuery bool
}

func (id Identity) Resolve(c *gin.Context) (domain.UserID, bool) {
	if tok := bearer(c); tok != "" && len(id.JWTSecret) > 0 {
		uid, err := id.parseToken(tok)
		if err == nil {
			return uid, true
		}
		log.Debug().Err(err).Str("module", "adapters.http").Msg("token rejected")
	}
	if raw, ok := sessions.Default(c).Get(sessionUserKey).(string); ok {
		if uid, err := domain.ParseUserID(raw); err == nil {
			return uid, true
		}
	}
	if id.AllowQuery {
		if uid, err := domain.ParseUserID(c.Query("userId")); err == nil {
			return uid, true
		}
	}
	return "", false
}

func (id Identity) parseToken(tok string) (domain.UserID, error) {
	token, err := jwt.ParseWithClaims(tok, &AuthClaims{}, func(t *jwt.Token) (any, error) {
		return id.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	raw := claims.UserID
	if raw == "" {
		raw = claims.Subject
	}
	return domain.ParseUserID(raw)
}

func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// RequireIdentity aborts with 401 when no identity resolves.
func RequireIdentity(id Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := id.Resolve(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(ctxUserID, uid)
		c.Next()
	}
}

func MustUserID(c *gin.Context) domain.UserID {
	v, _ := c.Get(ctxUserID)
	return v.(domain.UserID)
}
