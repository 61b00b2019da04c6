package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireCredential rejects requests while the gate holds no credential and
// exposes the current one to handlers under the "credential" key.
func RequireCredential(g *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, ok := g.Current()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		c.Set("credential", cred)
		c.Next()
	}
}

// RequireRole rejects requests whose credential does not carry one of roles.
// Must run after RequireCredential.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get("credential")
		cred, _ := v.(Credential)
		for _, r := range roles {
			if string(cred.Actor.Role) == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not available for role " + string(cred.Actor.Role)})
	}
}
