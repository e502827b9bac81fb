package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/responses"
	"github.com/pacs-databridge/app/services"
	"github.com/pacs-databridge/internal/matcher"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// AddressController serves normalize, parse and single-address match.
type AddressController struct {
	matchService *services.MatchService
	checks       map[string]HealthCheck
	logger       *zap.Logger
}

// NewAddressController takes named dependency probes for the health
// endpoint; checks may be nil.
func NewAddressController(matchService *services.MatchService, checks map[string]HealthCheck, logger *zap.Logger) *AddressController {
	return &AddressController{
		matchService: matchService,
		checks:       checks,
		logger:       logger,
	}
}

func (ac *AddressController) Normalize(c *gin.Context) {
	var req requests.NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, responses.NormalizeResponse{
		Raw:          req.Address,
		Normalized:   ac.matchService.Normalize(req.Address),
		Standardized: ac.matchService.Parse(req.Address).Standardized(),
	})
}

func (ac *AddressController) Parse(c *gin.Context) {
	var req requests.NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	parsed := ac.matchService.Parse(req.Address)
	c.JSON(http.StatusOK, responses.ParseResponse{
		Raw:          req.Address,
		Parsed:       parsed,
		Standardized: parsed.Standardized(),
		Full:         parsed.Full(),
	})
}

// MatchAddress scores one address against the parcel candidates.
func (ac *AddressController) MatchAddress(c *gin.Context) {
	var req requests.MatchAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}

	startTime := time.Now()
	result, cacheHit, err := ac.matchService.MatchAddress(c.Request.Context(), req.Address, req.Options)
	if err != nil {
		if errors.Is(err, matcher.ErrInvalidArgument) {
			respondError(c, http.StatusBadRequest, responses.CodeInvalidArgument, err.Error())
			return
		}
		ac.logger.Error("Address match failed", zap.String("address", req.Address), zap.Error(err))
		respondError(c, http.StatusInternalServerError, responses.CodeMatchError, "match failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, responses.MatchAddressResponse{
		Result:           result,
		ParcelVersion:    result.ParcelVersion,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		CacheHit:         cacheHit,
	})
}

// HealthCheck reports degraded, with 503, when any probe fails.
func (ac *AddressController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	svcs := map[string]string{"matcher": "healthy"}
	for name, check := range ac.checks {
		if err := check(ctx); err != nil {
			ac.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			svcs[name] = "unhealthy: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		svcs[name] = "healthy"
	}

	c.JSON(code, responses.HealthCheckResponse{
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Uptime:        time.Since(ac.matchService.GetStartTime()).Round(time.Second).String(),
		Version:       serviceVersion,
		ParcelVersion: ac.matchService.ParcelVersion(),
		Services:      svcs,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	resp := responses.NewErrorResponse(code, message)
	resp.RequestID = c.GetString(RequestIDKey)
	c.AbortWithStatusJSON(status, resp)
}

// RequestIDKey is the gin context key the request id middleware sets.
const RequestIDKey = "request_id"
