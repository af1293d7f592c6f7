package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/queue"
	"mailtriage/pkg/logger"
)

type EmailHandler struct {
	queue  queue.JobQueue
	logger *zap.Logger
}

func NewEmailHandler(q queue.JobQueue, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{queue: q, logger: logger}
}

type processRequest struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Process handles POST /emails/process
func (h *EmailHandler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	}

	id, err := h.queue.Enqueue(c.Request.Context(), queue.Submission{
		From:    req.Email,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue is busy, try again later"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process email"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": id,
		"status": "pending",
	})
}

// GetJob handles GET /jobs/:id
func (h *EmailHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	job, err := h.queue.Job(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to load job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	resp := gin.H{
		"job_id":       job.ID,
		"status":       job.Status,
		"submitted_at": job.SubmittedAt,
	}
	if job.StartedAt != nil {
		resp["started_at"] = job.StartedAt
	}
	if job.FinishedAt != nil {
		resp["finished_at"] = job.FinishedAt
	}
	if job.Result != nil {
		resp["label"] = job.Result.Label
		resp["raw_model_text"] = job.Result.RawModelText
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	c.JSON(http.StatusOK, resp)
}
