package restapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/service"
)

// RunHandler dispatches manual aggregation runs. The endpoint is an
// admin surface guarded by a shared bearer token.
type RunHandler struct {
	runner *service.Runner
	token  string
	logger *zap.Logger
}

func NewRunHandler(runner *service.Runner, token string, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		runner: runner,
		token:  token,
		logger: logger.Named("run_handler"),
	}
}

// TriggerHandler dispatches one aggregation run in the background and
// replies with its id immediately: a budgeted run outlasts any sane
// HTTP write timeout. Returns 409 when a run is already in flight.
func (h *RunHandler) TriggerHandler(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
		return
	}

	// Detach from the request context so a client disconnect cannot
	// abort the run mid-aggregation.
	runID, err := h.runner.Dispatch(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, service.ErrRunInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to dispatch run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Run dispatched", zap.String("run_id", runID))
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "accepted"})
}

func (h *RunHandler) authorized(c *gin.Context) bool {
	if h.token == "" {
		h.logger.Warn("Run trigger rejected: no trigger token configured")
		return false
	}
	header := c.GetHeader("Authorization")
	provided, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.token)) == 1
}
