package restapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// SnapshotListResponse is the paginated history payload.
type SnapshotListResponse struct {
	Data  []entity.PortfolioSnapshot `json:"data"`
	Page  int64                      `json:"page"`
	Limit int64                      `json:"limit"`
	Total int64                      `json:"total"`
}

// SnapshotHandler serves snapshot history endpoints.
type SnapshotHandler struct {
	store  port.SnapshotStore
	logger *zap.Logger
}

func NewSnapshotHandler(store port.SnapshotStore, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{store: store, logger: logger.Named("snapshot_handler")}
}

// ListHandler returns one page of history, newest first.
func (h *SnapshotHandler) ListHandler(c *gin.Context) {
	page := parseQueryInt(c, "page", 1)
	limit := parseQueryInt(c, "limit", defaultPageLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	snapshots, total, err := h.store.List(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.Error("Failed to list snapshots", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot store unavailable"})
		return
	}

	c.JSON(http.StatusOK, SnapshotListResponse{
		Data:  snapshots,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// GetHandler returns a single snapshot by id.
func (h *SnapshotHandler) GetHandler(c *gin.Context) {
	id := c.Param("id")

	snapshot, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrStoreUnavailable) {
			h.logger.Error("Failed to get snapshot", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot store unavailable"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// LatestHandler returns the newest snapshot.
func (h *SnapshotHandler) LatestHandler(c *gin.Context) {
	snapshot, err := h.store.Latest(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get latest snapshot", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot store unavailable"})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots recorded yet"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func parseQueryInt(c *gin.Context, key string, fallback int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
