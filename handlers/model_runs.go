package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"appointment-duration-api/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// RunLister pages through the retrain audit log, newest first.
type RunLister interface {
	List(ctx context.Context, limit int, before *time.Time) ([]models.ModelRun, error)
}

type runPage struct {
	Data       []models.ModelRun `json:"data"`
	NextCursor string            `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

type ModelRunHandler struct {
	runs RunLister
}

func NewModelRunHandler(runs RunLister) *ModelRunHandler {
	return &ModelRunHandler{runs: runs}
}

// List serves GET /model-runs?limit=&before=. The cursor is the started_at
// of the last run on the previous page.
func (h *ModelRunHandler) List(c *gin.Context) {
	limit := defaultRunLimit
	if s := c.Query("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(l, maxRunLimit)
	}

	var before *time.Time
	if s := c.Query("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be an RFC 3339 timestamp"})
			return
		}
		before = &t
	}

	rows, err := h.runs.List(c.Request.Context(), limit+1, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	page := runPage{Data: rows}
	if len(rows) > limit {
		page.Data = rows[:limit]
		page.HasMore = true
		page.NextCursor = page.Data[limit-1].StartedAt.Format(time.RFC3339Nano)
	}
	if page.Data == nil {
		page.Data = []models.ModelRun{}
	}
	c.JSON(http.StatusOK, page)
}
