package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	ingestiondomain "github.com/smallbiznis/revlens/internal/ingestion/domain"
	"github.com/smallbiznis/revlens/internal/scheduler"
	"go.uber.org/zap"
)

type syncRequest struct {
	APIKey   string `json:"api_key"`
	FullSync bool   `json:"full_sync"`
}

type syncResponse struct {
	Success bool `json:"success"`
	ingestiondomain.SyncResult
}

type cronSyncResponse struct {
	RunID   string                     `json:"run_id"`
	Synced  int                        `json:"synced"`
	Results []scheduler.MerchantResult `json:"results"`
}

func (s *Server) TriggerSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.runner.Run(c.Request.Context(), ingestiondomain.RunRequest{
		MerchantID: merchantIDFrom(c),
		APIKey:     req.APIKey,
		FullSync:   req.FullSync,
		Trigger:    ingestiondomain.TriggerManual,
	})
	if err != nil {
		if result.Error == "" {
			AbortWithError(c, err)
			return
		}
		// The sync started and failed part way; report what was stored.
		status, _ := mapError(err)
		c.JSON(status, syncResponse{Success: false, SyncResult: result})
		return
	}

	c.JSON(http.StatusOK, syncResponse{Success: true, SyncResult: result})
}

func (s *Server) CronSync(c *gin.Context) {
	report, err := s.sweeper.Sweep(c.Request.Context())
	if err != nil && report.Results == nil {
		AbortWithError(c, err)
		return
	}
	if err != nil {
		// Per-merchant failures are already in the report.
		s.log.Warn("cron sweep finished with errors",
			zap.String("run_id", report.RunID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, cronSyncResponse{
		RunID:   report.RunID,
		Synced:  len(report.Results),
		Results: report.Results,
	})
}
