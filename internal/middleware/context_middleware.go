package middleware

import (
	"strings"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ContextMiddleware struct {
	tokens *service.TokenService
}

func NewContextMiddleware(tokens *service.TokenService) *ContextMiddleware {
	return &ContextMiddleware{
		tokens: tokens,
	}
}

func (m *ContextMiddleware) Init() error {
	return nil
}

// Middleware resolves the access token (bearer header or cookie) into a user
// context. Requests without a valid token pass through with an empty context;
// handlers that need identity reject them.
func (m *ContextMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		encoded := m.getAccessToken(c)

		if encoded == "" {
			c.Next()
			return
		}

		accessToken, err := m.tokens.ValidateAccessToken(encoded)

		if err != nil {
			log.Debug().Err(err).Msg("Failed to validate access token")
			c.Next()
			return
		}

		c.Set("context", &config.UserContext{
			UserUUID:      accessToken.UserUUID,
			ClientID:      accessToken.ClientID,
			SessionHandle: accessToken.SessionHandle,
			IsLoggedIn:    true,
		})
		c.Set("accessToken", &accessToken)

		c.Next()
	}
}

func (m *ContextMiddleware) getAccessToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	cookie, err := c.Cookie(config.AccessTokenCookieName)
	if err != nil {
		return ""
	}

	return cookie
}
