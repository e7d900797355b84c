// Package admin provides the operator surface: settings management,
// unbans, the daily counter reset, and fraud review queues.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/movieboxhq/coinback/internal/abuse"
	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/redeem"
	"github.com/movieboxhq/coinback/internal/risk"
	"github.com/movieboxhq/coinback/internal/settings"
)

// Handler provides admin HTTP endpoints.
type Handler struct {
	accounts account.Store
	settings settings.Store
	abuse    abuse.Store
	redeems  *redeem.Service
}

// NewHandler creates a new admin handler.
func NewHandler(accounts account.Store, cfg settings.Store, abuseStore abuse.Store, redeems *redeem.Service) *Handler {
	return &Handler{
		accounts: accounts,
		settings: cfg,
		abuse:    abuseStore,
		redeems:  redeems,
	}
}

// RegisterRoutes sets up admin routes on an already-authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/settings", h.getSettings)
	r.PUT("/admin/settings", h.putSettings)
	r.POST("/admin/users/:uid/unban", h.unbanUser)
	r.POST("/admin/daily-reset", h.dailyReset)
	r.GET("/admin/abuse-logs", h.listAbuseLogs)
	r.GET("/admin/redeem-requests", h.listRedeemRequests)
	r.POST("/admin/redeem-requests/:id/status", h.setRedeemStatus)
}

func (h *Handler) getSettings(c *gin.Context) {
	cfg, err := h.settings.Load(c.Request.Context())
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   string(faults.NotFound),
				"message": "No settings configured.",
			})
			return
		}
		internalError(c, "load settings", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) putSettings(c *gin.Context) {
	var cfg settings.Settings
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": "Invalid JSON body.",
		})
		return
	}
	if err := cfg.ValidateBounds(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": err.Error(),
		})
		return
	}
	if err := h.settings.Save(c.Request.Context(), cfg); err != nil {
		internalError(c, "save settings", err)
		return
	}
	logging.L(c.Request.Context()).Info("settings updated",
		"coinPerReward", cfg.CoinPerReward, "dailyLimit", cfg.DailyLimit)
	c.JSON(http.StatusOK, cfg)
}

// unbanUser lifts a ban and zeroes the risk fields so the user starts clean.
func (h *Handler) unbanUser(c *gin.Context) {
	uid := c.Param("uid")
	acc, err := h.accounts.Update(c.Request.Context(), uid, func(acc *account.UserAccount) error {
		acc.Banned = false
		acc.RiskScore = 0
		acc.RiskLevel = risk.LevelSafe
		acc.SuspiciousCount = 0
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   string(faults.NotFound),
				"message": "No account with that uid.",
			})
			return
		}
		internalError(c, "unban user", err)
		return
	}
	logging.L(c.Request.Context()).Info("user unbanned", "uid", uid)
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) dailyReset(c *gin.Context) {
	n, err := h.accounts.ResetDailyCounts(c.Request.Context())
	if err != nil {
		internalError(c, "daily reset", err)
		return
	}
	logging.L(c.Request.Context()).Info("daily counters reset", "accounts", n)
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

func (h *Handler) listAbuseLogs(c *gin.Context) {
	limit := queryLimit(c, 100, 1000)

	var (
		entries []*abuse.Entry
		err     error
	)
	if uid := c.Query("uid"); uid != "" {
		entries, err = h.abuse.ListByUID(c.Request.Context(), uid, limit)
	} else {
		entries, err = h.abuse.List(c.Request.Context(), limit)
	}
	if err != nil {
		internalError(c, "list abuse logs", err)
		return
	}
	if entries == nil {
		entries = []*abuse.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *Handler) listRedeemRequests(c *gin.Context) {
	requests, err := h.redeems.ListAll(c.Request.Context(), queryLimit(c, 100, 500))
	if err != nil {
		internalError(c, "list redeem requests", err)
		return
	}
	if requests == nil {
		requests = []*redeem.Request{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests)})
}

func (h *Handler) setRedeemStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": "Invalid JSON body.",
		})
		return
	}

	updated, err := h.redeems.SetStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		kind := faults.KindOf(err)
		if kind == faults.Internal {
			internalError(c, "set redeem status", err)
			return
		}
		c.JSON(faults.HTTPStatus(kind), gin.H{
			"error":   string(kind),
			"message": faults.Message(err),
		})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func queryLimit(c *gin.Context, def, max int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	return limit
}

func internalError(c *gin.Context, op string, err error) {
	logging.L(c.Request.Context()).Error("admin "+op+" failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   string(faults.Internal),
		"message": "Internal error.",
	})
}
