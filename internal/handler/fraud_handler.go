package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fraudsim/internal/detector"
	"fraudsim/internal/model"
	"fraudsim/internal/service"
	"fraudsim/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FraudHandler handles HTTP requests for fraud-pattern operations
type FraudHandler struct {
	analytics  *service.AnalyticsService
	generation *service.GenerationService
	logger     *zap.Logger
}

// NewFraudHandler creates a new fraud handler
func NewFraudHandler(analytics *service.AnalyticsService, generation *service.GenerationService, logger *zap.Logger) *FraudHandler {
	return &FraudHandler{
		analytics:  analytics,
		generation: generation,
		logger:     logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all fraud routes
func (h *FraudHandler) RegisterRoutes(router chi.Router) {
	router.Route("/fraud", func(r chi.Router) {
		r.Get("/ip-velocity", h.IPVelocityReport)
		r.Get("/users", h.FilterUsers)
		r.Get("/users/{userID}/sessions", h.UserSessions)
		r.Get("/stats", h.Stats)
		r.Post("/generate", h.Generate)
	})
}

// IPVelocityReport returns the shared-IP velocity report.
// @Summary IP velocity report
// @Description Report IP addresses used by more than one distinct user
// @Tags fraud
// @Produce json
// @Param limit query int false "Maximum shared IPs to return (default: 20)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /fraud/ip-velocity [get]
func (h *FraudHandler) IPVelocityReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest, errors.New("invalid limit"), "Limit must be a positive integer")
			return
		}
		limit = parsed
	}

	report, err := h.analytics.IPVelocityReport(ctx, limit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to build IP velocity report")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(report, "IP velocity report generated"))
	h.logger.Debug("IP velocity report served",
		util.Int("shared_ip_count", report.SharedIPCount),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "IPVelocityReport"),
	)
}

// FilterUsers returns users matching a fraud filter category.
// @Summary Filter users
// @Description List user IDs matching a named fraud filter
// @Tags fraud
// @Produce json
// @Param filter query string true "Filter category: high_ip_velocity or high_risk"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /fraud/users [get]
func (h *FraudHandler) FilterUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	category := model.FilterCategory(r.URL.Query().Get("filter"))
	if category == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("filter is required"), "Query parameter 'filter' is required")
		return
	}

	result, err := h.analytics.FilterUsers(ctx, category)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to filter users")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Users filtered successfully"))
	h.logger.Debug("User filter served",
		util.String("filter", string(category)),
		util.Int("match_count", result.MatchCount),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "FilterUsers"),
	)
}

// UserSessions returns the session detail for one user.
// @Summary User session detail
// @Description Get all sessions and aggregates for a single user
// @Tags fraud
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 500 {object} Response
// @Router /fraud/users/{userID}/sessions [get]
func (h *FraudHandler) UserSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("user ID is required"), "User ID is required")
		return
	}

	detail, err := h.analytics.UserSessions(ctx, userID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get user sessions")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(detail, "User sessions retrieved successfully"))
	h.logger.Debug("User sessions served",
		util.String("user_id", userID),
		util.Int("total_sessions", detail.TotalSessions),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "UserSessions"),
	)
}

// Stats returns corpus-wide counters.
// @Summary Corpus statistics
// @Description Get totals across all generated sessions
// @Tags fraud
// @Produce json
// @Success 200 {object} Response
// @Failure 500 {object} Response
// @Router /fraud/stats [get]
func (h *FraudHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.analytics.Stats(ctx)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get stats")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(stats, "Stats retrieved successfully"))
}

// Generate runs a synchronous generation pass.
// @Summary Generate sessions
// @Description Generate login sessions for the requested number of users
// @Tags fraud
// @Accept json
// @Produce json
// @Param request body service.RunParams true "Generation parameters"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /fraud/generate [post]
func (h *FraudHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var params service.RunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	summary, err := h.generation.Run(ctx, params)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Generation run failed")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(summary, "Generation completed"))
	h.logger.Info("Generation run served",
		util.Int("users", summary.Users),
		util.Int64("sessions", summary.Sessions),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Generate"),
	)
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *FraudHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *FraudHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *FraudHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, detector.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidUserCount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
