package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
)

type trainModelRequest struct {
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	HorizonDays int    `json:"horizon_days"`
}

type trainModelResponse struct {
	RunID       string                 `json:"run_id"`
	ModelID     string                 `json:"model_id"`
	CompanyID   string                 `json:"company_id"`
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	TrainedAt   time.Time              `json:"trained_at"`
	Rows        int                    `json:"rows"`
	SkippedRows int                    `json:"skipped_rows"`
	Features    []string               `json:"features"`
	Metrics     forecastdomain.Metrics `json:"metrics"`
	Totals      map[string]float64     `json:"totals"`
	FirstDate   string                 `json:"first_date,omitempty"`
	Days        int                    `json:"days"`
	ArtifactURI string                 `json:"artifact_uri"`
}

func (s *Server) TrainModel(c *gin.Context) {
	var req trainModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		AbortWithError(c, newValidationError("company_id", "required", "company_id is required"))
		return
	}
	if req.HorizonDays < 0 {
		AbortWithError(c, newValidationError("horizon_days", "invalid_horizon_days", "horizon_days must not be negative"))
		return
	}
	if err := s.checkHorizonLimit(req.HorizonDays); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.pipeline.Train(c.Request.Context(), forecastdomain.TrainRequest{
		CompanyID:   strings.TrimSpace(req.CompanyID),
		Name:        strings.TrimSpace(req.Name),
		Version:     strings.TrimSpace(req.Version),
		HorizonDays: req.HorizonDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := trainModelResponse{
		RunID:       result.RunID,
		CompanyID:   result.CompanyID,
		Name:        result.Name,
		Version:     result.Version,
		TrainedAt:   result.TrainedAt,
		Rows:        result.Rows,
		SkippedRows: result.SkippedRows,
		Features:    result.Features,
		Metrics:     result.Metrics,
		Totals:      result.Forecast.Totals,
		Days:        len(result.Forecast.Daily),
		ArtifactURI: result.ArtifactURI,
	}
	if result.ModelID != 0 {
		resp.ModelID = strconv.FormatInt(result.ModelID, 10)
	}
	if len(result.Forecast.Daily) > 0 {
		resp.FirstDate = result.Forecast.Daily[0].Date
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListModels(c *gin.Context) {
	var query struct {
		CompanyID string `form:"company_id"`
		Name      string `form:"name"`
		Status    string `form:"status"`
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pageSize, err := parseOptionalInt(query.PageSize)
	if err != nil || (pageSize != nil && *pageSize <= 0) {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer"))
		return
	}
	req := mlmodeldomain.ListModelsRequest{
		CompanyID: strings.TrimSpace(query.CompanyID),
		Name:      strings.TrimSpace(query.Name),
		Status:    strings.ToUpper(strings.TrimSpace(query.Status)),
		PageToken: strings.TrimSpace(query.PageToken),
	}
	if pageSize != nil {
		req.PageSize = int32(min(*pageSize, 1000))
	}

	resp, err := s.models.ListModels(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Models, "page_info": resp.PageInfo})
}

func (s *Server) GetActiveModel(c *gin.Context) {
	companyID := strings.TrimSpace(c.Query("company_id"))
	if companyID == "" {
		AbortWithError(c, newValidationError("company_id", "required", "company_id is required"))
		return
	}
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		name = s.forecast.Get().ModelName
	}

	model, err := s.models.QueryActive(c.Request.Context(), companyID, name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": model})
}

func (s *Server) GetModelByID(c *gin.Context) {
	model, err := s.models.GetModel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": model})
}

func (s *Server) ListPredictions(c *gin.Context) {
	var query struct {
		CompanyID   string `form:"company_id"`
		ModelID     string `form:"model_id"`
		From        string `form:"from"`
		To          string `form:"to"`
		HorizonDays string `form:"horizon_days"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalDate(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "from must be YYYY-MM-DD"))
		return
	}
	to, err := parseOptionalDate(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "to must be YYYY-MM-DD"))
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		AbortWithError(c, newValidationError("to", "invalid_range", "to must not be before from"))
		return
	}
	horizon, err := parseOptionalInt(query.HorizonDays)
	if err != nil || (horizon != nil && *horizon <= 0) {
		AbortWithError(c, newValidationError("horizon_days", "invalid_horizon_days", "horizon_days must be a positive integer"))
		return
	}

	req := mlmodeldomain.ListPredictionsRequest{
		CompanyID: strings.TrimSpace(query.CompanyID),
		ModelID:   strings.TrimSpace(query.ModelID),
		From:      from,
		To:        to,
	}
	if horizon != nil {
		req.HorizonDays = *horizon
	}

	predictions, err := s.models.ListPredictions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": predictions})
}
