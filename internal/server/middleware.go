package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/revlens/internal/observability/context"
	obsmiddleware "github.com/smallbiznis/revlens/internal/observability/logger"
)

const contextMerchantIDKey = "merchant_id"

// MerchantRequired resolves the merchant from the request header. Callers are
// authenticated upstream; this only scopes the request.
func MerchantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchantID := strings.TrimSpace(c.GetHeader(obsmiddleware.MerchantHeader))
		if merchantID == "" {
			AbortWithError(c, newValidationError("merchant_id", "required", "X-Merchant-ID header is required"))
			return
		}

		c.Set(contextMerchantIDKey, merchantID)
		c.Request = c.Request.WithContext(obscontext.WithMerchantID(c.Request.Context(), merchantID))
		c.Next()
	}
}

func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.CronSecret)
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

func merchantIDFrom(c *gin.Context) string {
	return c.GetString(contextMerchantIDKey)
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
