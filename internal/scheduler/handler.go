package scheduler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"newswire/internal/deadletter"
	"newswire/internal/logger"
	"newswire/pkg/errors"
)

type Handler struct {
	service     *Service
	deadLetters *deadletter.Store
	logger      logger.Logger
}

func NewHandler(service *Service, deadLetters *deadletter.Store, log logger.Logger) *Handler {
	return &Handler{
		service:     service,
		deadLetters: deadLetters,
		logger:      log,
	}
}

// RegisterRoutes mounts the control surface behind the given auth middleware.
func (h *Handler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	v1 := router.Group("/api/v1", auth)
	{
		v1.POST("/enqueue", h.EnqueueSource)
		v1.POST("/enqueue-due", h.EnqueueDue)
		v1.POST("/enqueue-batch", h.EnqueueBatch)
		v1.POST("/submit", h.Submit)

		if h.deadLetters != nil {
			deadLetters := v1.Group("/dead-letters")
			{
				deadLetters.GET("", h.ListDeadLetters)
				deadLetters.POST("/:id/replay", h.ReplayDeadLetter)
			}
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// EnqueueSource godoc
// @Summary      Enqueue one source immediately
// @Description  Parse the registered source's feed and enqueue its items, bypassing the due filter
// @Tags         scheduler
// @Produce      json
// @Param        url  query     string  true  "Registered source URL"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /enqueue [post]
func (h *Handler) EnqueueSource(c *gin.Context) {
	sourceURL := c.Query("url")
	if sourceURL == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("message", "url query parameter is required")))
		return
	}

	enqueued, err := h.service.EnqueueSource(c.Request.Context(), sourceURL)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sourceUrl": sourceURL, "itemsEnqueued": enqueued})
}

// EnqueueDue godoc
// @Summary      Enqueue all currently due sources
// @Description  Sweep due sources across tiers, optionally narrowed by type
// @Tags         scheduler
// @Produce      json
// @Param        limit  query     int     false  "Max sources per tier"
// @Param        types  query     string  false  "Comma-separated source types"
// @Success      200    {object}  Summary
// @Router       /enqueue-due [post]
func (h *Handler) EnqueueDue(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("message", "limit must be a non-negative integer")))
			return
		}
		limit = parsed
	}

	var types []string
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	summary := h.service.EnqueueDue(c.Request.Context(), types, limit)
	c.JSON(http.StatusOK, summary)
}

type enqueueBatchRequest struct {
	Sources []string `json:"sources" binding:"required"`
}

// EnqueueBatch godoc
// @Summary      Enqueue a batch of sources immediately
// @Tags         scheduler
// @Accept       json
// @Produce      json
// @Param        request  body      enqueueBatchRequest  true  "Source URLs"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  errors.ErrorResponse
// @Router       /enqueue-batch [post]
func (h *Handler) EnqueueBatch(c *gin.Context) {
	var req enqueueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	results := make([]gin.H, 0, len(req.Sources))
	for _, sourceURL := range req.Sources {
		enqueued, err := h.service.EnqueueSource(c.Request.Context(), sourceURL)
		if err != nil {
			h.logger.WarnwCtx(c.Request.Context(), "Batch enqueue failed for source",
				"error", err,
				"source_url", sourceURL,
			)
			results = append(results, gin.H{"sourceUrl": sourceURL, "error": err.Error()})
			continue
		}
		results = append(results, gin.H{"sourceUrl": sourceURL, "itemsEnqueued": enqueued})
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Submit godoc
// @Summary      Submit a single article
// @Description  Enqueue one raw article, bypassing source lookup
// @Tags         scheduler
// @Accept       json
// @Produce      json
// @Param        submission  body      Submission  true  "Article submission"
// @Success      202         {object}  map[string]interface{}
// @Failure      400         {object}  errors.ErrorResponse
// @Router       /submit [post]
func (h *Handler) Submit(c *gin.Context) {
	var sub Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := h.service.SubmitArticle(c.Request.Context(), sub); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"url": sub.URL, "status": "accepted"})
}

// ListDeadLetters godoc
// @Summary      List dead letter records
// @Tags         dead-letters
// @Produce      json
// @Param        limit   query     int  false  "Page size"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {array}   models.DeadLetterRecord
// @Router       /dead-letters [get]
func (h *Handler) ListDeadLetters(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.deadLetters.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ReplayDeadLetter godoc
// @Summary      Replay a dead letter
// @Description  Re-enqueue the original message with a fresh retry budget and remove the record
// @Tags         dead-letters
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  models.DeadLetterRecord
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /dead-letters/{id}/replay [post]
func (h *Handler) ReplayDeadLetter(c *gin.Context) {
	record, err := h.deadLetters.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
