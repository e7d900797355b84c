package behavior

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieboxhq/coinback/internal/auth"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/logging"
)

// Handler exposes the behavior ingestion endpoint.
type Handler struct {
	tracker *Tracker
}

// NewHandler creates the HTTP handler for behavior events.
func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

type trackBody struct {
	RewardClicks    int    `json:"rewardClicks"`
	SessionDuration int64  `json:"sessionDuration"`
	DeviceHash      string `json:"deviceHash"`
}

// Track handles POST /v1/behavior.
func (h *Handler) Track(c *gin.Context) {
	var body trackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": "Invalid JSON body.",
		})
		return
	}

	_, err := h.tracker.Track(c.Request.Context(), TrackInput{
		UID:             auth.AuthenticatedUser(c),
		RewardClicks:    body.RewardClicks,
		SessionDuration: body.SessionDuration,
		DeviceHash:      body.DeviceHash,
	})
	if err != nil {
		kind := faults.KindOf(err)
		if kind == faults.Internal {
			logging.L(c.Request.Context()).Error("behavior tracking failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(faults.Internal),
				"message": "Internal error.",
			})
			return
		}
		c.JSON(faults.HTTPStatus(kind), gin.H{
			"error":   string(kind),
			"message": faults.Message(err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
