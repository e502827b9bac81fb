package controllers

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/responses"
	"github.com/pacs-databridge/app/services"
	"go.uber.org/zap"
)

// JobController serves asynchronous batch matching.
type JobController struct {
	batchService *services.BatchService
	jobCtx       context.Context
	logger       *zap.Logger
}

// NewJobController runs jobs under jobCtx, which should outlive requests and
// be cancelled on shutdown.
func NewJobController(batchService *services.BatchService, jobCtx context.Context, logger *zap.Logger) *JobController {
	return &JobController{batchService: batchService, jobCtx: jobCtx, logger: logger}
}

func (jc *JobController) SubmitBatch(c *gin.Context) {
	var req requests.BatchMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}

	job, err := jc.batchService.Submit(jc.jobCtx, req.Addresses, req.Options)
	if err != nil {
		if errors.Is(err, services.ErrBatchTooBig) {
			respondError(c, http.StatusBadRequest, responses.CodeBatchTooBig, err.Error())
			return
		}
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, err.Error())
		return
	}

	jc.logger.Info("Batch job submitted", zap.String("job_id", job.JobID), zap.Int("total", job.Total))
	c.JSON(http.StatusAccepted, responses.BatchMatchResponse{
		JobID:          job.JobID,
		TotalAddresses: job.Total,
		Message:        "job accepted",
	})
}

func (jc *JobController) GetJobStatus(c *gin.Context) {
	job, err := jc.batchService.GetJobStatus(c.Param("jobID"))
	if err != nil {
		respondError(c, http.StatusNotFound, responses.CodeJobNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, responses.JobStatusResponse{
		JobID:       job.JobID,
		Status:      job.Status,
		Progress:    job.Progress(),
		Processed:   job.Processed,
		Total:       job.Total,
		Message:     job.Message,
		Summary:     job.Summary,
		CompletedAt: job.CompletedAt,
	})
}

// GetJobResults returns a finished job's results as JSON, or as NDJSON with
// format=ndjson, gzip-compressed with gzip=1.
func (jc *JobController) GetJobResults(c *gin.Context) {
	jobID := c.Param("jobID")
	if c.Query("format") == "ndjson" {
		jc.streamNDJSONResults(c, jobID, c.Query("gzip") == "1")
		return
	}

	results, err := jc.batchService.GetJobResults(jobID)
	if err != nil {
		jc.respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses.NewSuccessResponse("job results", results))
}

func (jc *JobController) respondJobError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrJobNotReady) {
		respondError(c, http.StatusConflict, responses.CodeJobNotReady, err.Error())
		return
	}
	respondError(c, http.StatusNotFound, responses.CodeJobNotFound, err.Error())
}

func (jc *JobController) streamNDJSONResults(c *gin.Context, jobID string, gzipEnabled bool) {
	resultChannel, err := jc.batchService.GetJobResultsStream(jobID)
	if err != nil {
		jc.respondJobError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	var writer gin.ResponseWriter = c.Writer
	if gzipEnabled {
		c.Header("Content-Encoding", "gzip")
		gzWriter := gzip.NewWriter(c.Writer)
		defer gzWriter.Close()
		writer = &gzipResponseWriter{ResponseWriter: c.Writer, gzWriter: gzWriter}
	}
	c.Status(http.StatusOK)

	encoder := json.NewEncoder(writer)
	for result := range resultChannel {
		if err := encoder.Encode(result); err != nil {
			jc.logger.Error("NDJSON encode failed", zap.String("job_id", jobID), zap.Error(err))
			break
		}
		writer.Flush()
	}
	// drain so the producer goroutine exits
	for range resultChannel {
	}
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	gzWriter *gzip.Writer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	return w.gzWriter.Write(data)
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.gzWriter.Write([]byte(s))
}

func (w *gzipResponseWriter) Flush() {
	w.gzWriter.Flush()
	w.ResponseWriter.Flush()
}
