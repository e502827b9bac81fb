package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/responses"
	"github.com/pacs-databridge/app/services"
	"go.uber.org/zap"
)

const maxReviewPage = 500

// ReviewController serves the manual review queue.
type ReviewController struct {
	reviews services.ReviewStore
	logger  *zap.Logger
}

func NewReviewController(reviews services.ReviewStore, logger *zap.Logger) *ReviewController {
	return &ReviewController{reviews: reviews, logger: logger}
}

// ListReviews pages through the queue, pending reviews by default.
func (rc *ReviewController) ListReviews(c *gin.Context) {
	var q requests.ReviewListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid query: "+err.Error())
		return
	}
	if q.Status == "" {
		q.Status = models.ReviewStatusPending
	} else if q.Status == "all" {
		q.Status = ""
	}
	if q.Limit <= 0 || q.Limit > maxReviewPage {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	ctx := c.Request.Context()
	list, err := rc.reviews.List(ctx, q.Status, q.Limit, q.Offset)
	if err != nil {
		rc.logger.Error("Review listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, responses.CodeInternal, err.Error())
		return
	}
	pending, err := rc.reviews.Count(ctx, models.ReviewStatusPending)
	if err != nil {
		rc.logger.Warn("Pending review count failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, responses.ReviewListResponse{
		Reviews: list,
		Pending: pending,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

func (rc *ReviewController) ApproveReview(c *gin.Context) {
	var req requests.ReviewApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	id := c.Param("id")
	review, err := rc.reviews.Approve(c.Request.Context(), id, req.ParcelID, req.ReviewerID)
	rc.respond(c, id, "approve", review, err)
}

func (rc *ReviewController) RejectReview(c *gin.Context) {
	var req requests.ReviewRejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	id := c.Param("id")
	review, err := rc.reviews.Reject(c.Request.Context(), id, req.ReviewerID, req.Note)
	rc.respond(c, id, "reject", review, err)
}

func (rc *ReviewController) respond(c *gin.Context, id, action string, review *models.MatchReview, err error) {
	switch {
	case errors.Is(err, services.ErrReviewNotFound):
		respondError(c, http.StatusNotFound, responses.CodeReviewNotFound, err.Error())
	case errors.Is(err, services.ErrReviewClosed):
		respondError(c, http.StatusConflict, responses.CodeReviewClosed, err.Error())
	case err != nil:
		rc.logger.Error("Review update failed", zap.String("id", id), zap.String("action", action), zap.Error(err))
		respondError(c, http.StatusInternalServerError, responses.CodeInternal, err.Error())
	default:
		c.JSON(http.StatusOK, responses.ReviewActionResponse{
			Success:  true,
			ReviewID: id,
			Action:   action,
			Review:   review,
		})
	}
}
