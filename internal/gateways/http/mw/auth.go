package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"subs_engine/internal/auth"
	"subs_engine/internal/entity"
)

const callerKey = "caller"

// Auth resolves the calling account from a Bearer token and aborts with 401 when it is missing or invalid
func Auth(tokens *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		account, err := tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(callerKey, account)
		c.Next()
	}
}

// Caller returns the account set by Auth
func Caller(c *gin.Context) entity.Account {
	v, ok := c.Get(callerKey)
	if !ok {
		return entity.ZeroAccount
	}
	account, _ := v.(entity.Account)
	return account
}
