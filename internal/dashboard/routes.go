package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hbeckert/concierge/internal/bridge"
	"github.com/hbeckert/concierge/internal/models"
	"github.com/hbeckert/concierge/internal/registry"
	"github.com/hbeckert/concierge/internal/supervisor"
	"github.com/hbeckert/concierge/internal/tabs"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts *Opts) {
	api := router.Group("/api")

	api.GET("/tabs", handleListTabs(opts))
	api.POST("/tabs/next", handleCycle(opts, 1))
	api.POST("/tabs/previous", handleCycle(opts, -1))

	api.POST("/accounts", handleRegister(opts))
	api.DELETE("/accounts/:id", handleUnregister(opts))
	api.POST("/accounts/:id/open", handleOpen(opts))
	api.POST("/accounts/:id/close", handleWindowOp(opts, "close"))
	api.POST("/accounts/:id/reload", handleWindowOp(opts, "reload"))
	api.POST("/accounts/:id/focus", handleWindowOp(opts, "focus"))
	api.POST("/accounts/:id/home", handleWindowOp(opts, "home"))
	api.POST("/accounts/:id/back", handleWindowOp(opts, "back"))
	api.POST("/accounts/:id/forward", handleWindowOp(opts, "forward"))

	api.POST("/external-events", handleExternalEvent(opts))
	api.POST("/activity/seen", handleMarkSeen(opts))

	api.GET("/events", handleSSE(opts))
}

// replyError maps the error taxonomy onto HTTP statuses.
func replyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, supervisor.ErrNotOpen),
		errors.Is(err, tabs.ErrNoOpenTabs):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func handleListTabs(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tabs": opts.Tabs.List()})
	}
}

func handleCycle(opts *Opts, dir int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var err error
		var tab interface{}
		if dir > 0 {
			tab, err = opts.Tabs.CycleNext(c.Request.Context())
		} else {
			tab, err = opts.Tabs.CyclePrevious(c.Request.Context())
		}
		if err != nil {
			replyError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"focused": tab})
	}
}

// registerRequest is the payload the dashboard backend sends when an account
// is linked. The partition key is derived from the immutable id, never from
// mutable fields.
type registerRequest struct {
	ID          string          `json:"id" binding:"required"`
	Platform    models.Platform `json:"platform" binding:"required"`
	DisplayName string          `json:"display_name"`
}

func handleRegister(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !req.Platform.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})
			return
		}
		b := models.AccountBinding{
			ID:           req.ID,
			Platform:     req.Platform,
			DisplayName:  req.DisplayName,
			PartitionKey: "acct-" + req.ID,
		}
		if err := opts.Registry.Register(b); err != nil {
			replyError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "registered"})
	}
}

func handleUnregister(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := opts.Registry.Unregister(c.Param("id")); err != nil {
			replyError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
	}
}

func handleOpen(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := opts.Supervisor.Open(c.Request.Context(), c.Param("id"))
		if err != nil {
			replyError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result.String()})
	}
}

func handleWindowOp(opts *Opts, op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")
		var err error
		switch op {
		case "close":
			err = opts.Supervisor.Close(ctx, id)
		case "reload":
			err = opts.Supervisor.Reload(ctx, id)
		case "focus":
			err = opts.Supervisor.Focus(ctx, id)
		case "home":
			err = opts.Supervisor.NavigateHome(ctx, id)
		case "back":
			err = opts.Supervisor.GoBack(ctx, id)
		case "forward":
			err = opts.Supervisor.GoForward(ctx, id)
		}
		if err != nil {
			replyError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// externalEventRequest is the backend's data-layer event: a new booking or
// maintenance ticket that should render exactly like an in-window detection.
type externalEventRequest struct {
	AccountID   string          `json:"account_id"`
	Platform    models.Platform `json:"platform"`
	DisplayName string          `json:"display_name"`
	Delta       int             `json:"delta"`
}

func handleExternalEvent(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req externalEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Delta <= 0 {
			req.Delta = 1
		}
		if opts.Store != nil {
			if err := opts.Store.AppendActivity(models.ActivityRecord{
				AccountID: req.AccountID,
				Platform:  req.Platform,
				Delta:     req.Delta,
				Source:    models.SourceBackend,
			}); err != nil {
				opts.Log.Warn().Err(err).Msg("activity log write failed")
			}
		}
		opts.Bus.PublishActivity(bridge.ActivityEvent{
			AccountID:   req.AccountID,
			Platform:    req.Platform,
			DisplayName: req.DisplayName,
			Delta:       req.Delta,
			Source:      models.SourceBackend,
		})
		c.JSON(http.StatusOK, gin.H{"status": "relayed"})
	}
}

func handleMarkSeen(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store != nil {
			if err := opts.Store.MarkActivitySeen(); err != nil {
				replyError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
