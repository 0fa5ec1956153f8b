package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revlens/internal/analytics/churn"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
)

const maxHistoryMonths = 120

type mrrResponse struct {
	Months []mrr.Snapshot `json:"months"`
}

type cohortResponse struct {
	Cells []cohort.Snapshot `json:"cells"`
}

type churnResponse struct {
	Current churn.Metrics      `json:"current"`
	Trend   []churn.TrendPoint `json:"trend"`
}

func (s *Server) GetMRR(c *gin.Context) {
	months, err := parseOptionalInt(c.Query("months"))
	if err != nil || (months != nil && (*months < 1 || *months > maxHistoryMonths)) {
		AbortWithError(c, newValidationError("months", "invalid", "months must be between 1 and 120"))
		return
	}

	limit := 0
	if months != nil {
		limit = *months
	}

	snapshots, err := s.mrrSvc.History(c.Request.Context(), merchantIDFrom(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if snapshots == nil {
		snapshots = []mrr.Snapshot{}
	}

	c.JSON(http.StatusOK, mrrResponse{Months: snapshots})
}

func (s *Server) GetCohorts(c *gin.Context) {
	cells, err := s.cohortSvc.List(c.Request.Context(), merchantIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if cells == nil {
		cells = []cohort.Snapshot{}
	}

	c.JSON(http.StatusOK, cohortResponse{Cells: cells})
}

func (s *Server) GetChurn(c *gin.Context) {
	ctx := c.Request.Context()
	merchantID := merchantIDFrom(c)

	current, err := s.churnSvc.Current(ctx, merchantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	trend, err := s.churnSvc.Trend(ctx, merchantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if trend == nil {
		trend = []churn.TrendPoint{}
	}

	c.JSON(http.StatusOK, churnResponse{Current: current, Trend: trend})
}

func (s *Server) GetOverview(c *gin.Context) {
	kpis, err := s.overviewSvc.Get(c.Request.Context(), merchantIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, kpis)
}
