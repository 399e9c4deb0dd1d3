package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/db/repository"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

const defaultListLimit = 20

// ReviewHandler exposes read-only views of the review ledger.
type ReviewHandler struct {
	repo repository.ReviewRequestRepository
}

// NewReviewHandler creates a new ReviewHandler instance.
func NewReviewHandler(repo repository.ReviewRequestRepository) *ReviewHandler {
	return &ReviewHandler{repo: repo}
}

// ListPending returns the newest pending review requests.
func (h *ReviewHandler) ListPending(c *gin.Context) {
	requests, err := h.repo.ListPending(c.Request.Context(), listLimit(c))
	if err != nil {
		h.internalError(c, err, "Failed to list pending requests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(requests),
		"requests": requests,
	})
}

// ListApproved returns the most recently approved requests.
func (h *ReviewHandler) ListApproved(c *gin.Context) {
	requests, err := h.repo.ListApproved(c.Request.Context(), listLimit(c))
	if err != nil {
		h.internalError(c, err, "Failed to list approved requests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(requests),
		"requests": requests,
	})
}

// Stats returns request counts per review status.
func (h *ReviewHandler) Stats(c *gin.Context) {
	counts, err := h.repo.CountsByStatus(c.Request.Context())
	if err != nil {
		h.internalError(c, err, "Failed to count requests")
		return
	}

	c.JSON(http.StatusOK, counts)
}

func (h *ReviewHandler) internalError(c *gin.Context, err error, msg string) {
	logger.Log.Error(msg,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
	)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Status:    http.StatusInternalServerError,
		Error:     "Internal Server Error",
		Message:   msg,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

func listLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}
