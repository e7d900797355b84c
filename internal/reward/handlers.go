package reward

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieboxhq/coinback/internal/auth"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/validation"
)

// Handler exposes the reward grant endpoint.
type Handler struct {
	svc *Service
}

// NewHandler creates the HTTP handler for reward grants.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type grantBody struct {
	RewardIntent string `json:"rewardIntent"`
	DeviceHash   string `json:"deviceHash"`
	LastIP       string `json:"lastIP"`
}

// Grant handles POST /v1/rewards/grant.
func (h *Handler) Grant(c *gin.Context) {
	var body grantBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": "Invalid JSON body.",
		})
		return
	}

	result, err := h.svc.Grant(c.Request.Context(), GrantRequest{
		UID:        auth.AuthenticatedUser(c),
		DeviceHash: validation.SanitizeDeviceHash(body.DeviceHash),
		IP:         validation.ResolveClientIP(c, body.LastIP),
		Intent:     body.RewardIntent,
	})
	if err != nil {
		kind := faults.KindOf(err)
		if kind == faults.Internal {
			logging.L(c.Request.Context()).Error("reward grant failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(faults.Internal),
				"message": "Internal error.",
			})
			return
		}
		body := gin.H{
			"error":   string(kind),
			"message": faults.Message(err),
		}
		var de *DeniedError
		if errors.As(err, &de) {
			body["riskLevel"] = de.RiskLevel
		}
		c.JSON(faults.HTTPStatus(kind), body)
		return
	}

	c.JSON(http.StatusOK, result)
}
