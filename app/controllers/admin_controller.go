package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/responses"
	"github.com/pacs-databridge/app/services"
	"go.uber.org/zap"
)

// AdminController serves parcel loading, cache maintenance and statistics.
type AdminController struct {
	adminService *services.AdminService
	logger       *zap.Logger
}

func NewAdminController(adminService *services.AdminService, logger *zap.Logger) *AdminController {
	return &AdminController{adminService: adminService, logger: logger}
}

// IndexParcels loads an uploaded parcel CSV (multipart field "file").
// clear=true empties the search index first.
func (ac *AdminController) IndexParcels(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "missing parcel file: "+err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "cannot read upload: "+err.Error())
		return
	}
	defer f.Close()

	clearIndex := c.PostForm("clear") == "true" || c.Query("clear") == "true"
	result, err := ac.adminService.IndexParcels(c.Request.Context(), f, fh.Filename, clearIndex)
	if err != nil {
		ac.logger.Error("Parcel index load failed", zap.String("file", fh.Filename), zap.Error(err))
		respondError(c, http.StatusUnprocessableEntity, responses.CodeIndexError, err.Error())
		return
	}
	c.JSON(http.StatusOK, responses.NewSuccessResponse("parcels indexed", result))
}

// InvalidateCache drops results computed against older parcel versions, or
// all results with {"all": true}.
func (ac *AdminController) InvalidateCache(c *gin.Context) {
	var req requests.InvalidateCacheRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
			return
		}
	}

	startTime := time.Now()
	if err := ac.adminService.InvalidateCache(c.Request.Context(), req.All); err != nil {
		ac.logger.Error("Cache invalidation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, responses.CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, responses.NewSuccessResponse("cache invalidated", gin.H{
		"all":                req.All,
		"processing_time_ms": time.Since(startTime).Milliseconds(),
	}))
}

func (ac *AdminController) GetStats(c *gin.Context) {
	stats, err := ac.adminService.GetSystemStats(c.Request.Context())
	if err != nil {
		ac.logger.Error("Stats unavailable", zap.Error(err))
		respondError(c, http.StatusInternalServerError, responses.CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportData dumps a MongoDB collection as JSON.
func (ac *AdminController) ExportData(c *gin.Context) {
	limit := 1000
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	data, err := ac.adminService.ExportData(c.Request.Context(), c.Param("type"), limit)
	if err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, err.Error())
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+c.Param("type")+".json")
	c.Data(http.StatusOK, "application/json", data)
}
