package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
)

type connectionRequest struct {
	APIKey string `json:"api_key"`
}

type validateConnectionResponse struct {
	connectiondomain.Validation
	Error string `json:"error,omitempty"`
}

func (s *Server) GetConnection(c *gin.Context) {
	conn, err := s.connectionSvc.Get(c.Request.Context(), merchantIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

func (s *Server) CreateConnection(c *gin.Context) {
	apiKey, ok := bindAPIKey(c)
	if !ok {
		return
	}

	conn, err := s.connectionSvc.Store(c.Request.Context(), merchantIDFrom(c), apiKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conn)
}

// ValidateConnection reports a rejected key in the body so the caller can
// show the provider's message next to the input.
func (s *Server) ValidateConnection(c *gin.Context) {
	apiKey, ok := bindAPIKey(c)
	if !ok {
		return
	}

	validation, err := s.connectionSvc.Validate(c.Request.Context(), apiKey)
	if err != nil {
		if errors.Is(err, connectiondomain.ErrInvalidCredential) {
			c.JSON(http.StatusBadRequest, validateConnectionResponse{Error: err.Error()})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, validateConnectionResponse{Validation: validation})
}

func bindAPIKey(c *gin.Context) (string, bool) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return "", false
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		AbortWithError(c, newValidationError("api_key", "required", "api_key is required"))
		return "", false
	}
	return apiKey, true
}
