package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agentmux/internal/domain"
)

// tokenAuth checks bearer tokens using constant-time comparison. With no
// tokens configured every request passes.
type tokenAuth struct {
	tokens [][]byte
}

func newTokenAuth(tokens []string) *tokenAuth {
	a := &tokenAuth{}
	for _, t := range tokens {
		if t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	return a
}

func (a *tokenAuth) valid(token string) bool {
	if token == "" {
		return false
	}
	ok := false
	for _, t := range a.tokens {
		if subtle.ConstantTimeCompare(t, []byte(token)) == 1 {
			ok = true
		}
	}
	return ok
}

func (a *tokenAuth) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(a.tokens) == 0 {
			c.Next()
			return
		}
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || !a.valid(strings.TrimSpace(token)) {
			c.Header("WWW-Authenticate", `Bearer realm="agentmux"`)
			abortError(c, http.StatusUnauthorized, domain.CodeAuthInvalid, "missing or invalid bearer token")
			return
		}
		c.Next()
	}
}
