package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	refreshdomain "github.com/smallbiznis/forecast/internal/refresh/domain"
)

const defaultHorizonDays = 3 * daysPerMonth

func (s *Server) GetForecast(c *gin.Context) {
	var query struct {
		CompanyID   string `form:"company_id"`
		Period      string `form:"period"`
		HorizonDays string `form:"horizon_days"`
		StartDate   string `form:"start_date"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	companyID := strings.TrimSpace(query.CompanyID)
	if companyID == "" {
		AbortWithError(c, newValidationError("company_id", "required", "company_id is required"))
		return
	}
	days, err := resolveHorizonDays(query.Period, query.HorizonDays, defaultHorizonDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.checkHorizonLimit(days); err != nil {
		AbortWithError(c, err)
		return
	}
	start, err := parseOptionalDate(query.StartDate)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "start_date must be YYYY-MM-DD"))
		return
	}

	resp, err := s.refresh.GetForecast(c.Request.Context(), refreshdomain.ForecastRequest{
		CompanyID:   companyID,
		StartDate:   start,
		HorizonDays: days,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Refreshed {
		c.Set("refresh_attempted", true)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type refreshForecastRequest struct {
	CompanyID string `json:"company_id"`
}

// RefreshForecast retrains one company, or every known company when the body
// names none. A partial failure across companies answers 207 with per-company
// errors.
func (s *Server) RefreshForecast(c *gin.Context) {
	var req refreshForecastRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	companyID := strings.TrimSpace(req.CompanyID)
	results, err := s.refresh.TriggerRefresh(c.Request.Context(), companyID)
	if err != nil && (companyID != "" || len(results) == 0) {
		AbortWithError(c, err)
		return
	}
	c.Set("refresh_attempted", true)

	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"data": results})
}
