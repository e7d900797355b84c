package redeem

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieboxhq/coinback/internal/auth"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/logging"
)

// Handler exposes the user-facing redemption endpoint.
type Handler struct {
	svc *Service
}

// NewHandler creates the HTTP handler for redemptions.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type redeemBody struct {
	Amount *int `json:"amount"`
	// Coins is the legacy field name older app builds still send.
	Coins *int `json:"coins"`
}

func (b redeemBody) amount() int {
	if b.Amount != nil {
		return *b.Amount
	}
	if b.Coins != nil {
		return *b.Coins
	}
	return 0
}

// Redeem handles POST /v1/redeem.
func (h *Handler) Redeem(c *gin.Context) {
	var body redeemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": "Invalid JSON body.",
		})
		return
	}

	req, err := h.svc.Redeem(c.Request.Context(), auth.AuthenticatedUser(c), body.amount())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, req)
}

// History handles GET /v1/redeem.
func (h *Handler) History(c *gin.Context) {
	requests, err := h.svc.History(c.Request.Context(), auth.AuthenticatedUser(c), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	if requests == nil {
		requests = []*Request{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func writeError(c *gin.Context, err error) {
	kind := faults.KindOf(err)
	if kind == faults.Internal {
		logging.L(c.Request.Context()).Error("redeem request failed", "error", err)
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
}
