package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxSubject = "sub"
	ctxGuilds  = "guilds"

	// AllGuilds in the guilds claim grants access to every group.
	AllGuilds = "*"
)

// JWTMiddleware accepts HS256 bearer tokens signed with secret and stores the subject and the
// guilds claim on the context.
func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if len(secret) == 0 || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tok, err := jwt.Parse(h[7:], func(t *jwt.Token) (interface{}, error) { return secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, _ := tok.Claims.(jwt.MapClaims)
		sub, _ := claims.GetSubject()
		c.Set(ctxSubject, sub)
		c.Set(ctxGuilds, guildsClaim(claims))
		c.Next()
	}
}

func guildsClaim(claims jwt.MapClaims) []string {
	raw, ok := claims["guilds"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// GroupAccess rejects requests for a group the token does not list.
func GroupAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		guilds, _ := c.Get(ctxGuilds)
		allowed, _ := guilds.([]string)
		group := c.Param("group")
		if !slices.Contains(allowed, AllGuilds) && !slices.Contains(allowed, group) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "no access to this group"})
			return
		}
		c.Next()
	}
}
