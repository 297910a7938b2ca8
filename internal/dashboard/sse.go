package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hbeckert/concierge/internal/bridge"
)

// activityFrame is the SSE payload for one relayed activity event. Count
// carries the total unseen activity for the UI badge.
type activityFrame struct {
	bridge.ActivityEvent
	Count int64 `json:"count"`
}

// handleSSE streams activity events and tabs-changed advisories to the UI.
// The tabs-changed frame carries no data; the UI re-pulls /api/tabs.
func handleSSE(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		// Send connected event.
		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		activityID, activityCh := opts.Bus.SubscribeActivity()
		defer opts.Bus.UnsubscribeActivity(activityID)
		tabsID, tabsCh := opts.Bus.SubscribeTabs()
		defer opts.Bus.UnsubscribeTabs(tabsID)

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case ev, ok := <-activityCh:
				if !ok {
					return
				}
				frame := activityFrame{ActivityEvent: ev}
				if opts.Store != nil {
					if count, err := opts.Store.UnseenActivityCount(); err == nil {
						frame.Count = count
					}
				}
				writeSSE(c.Writer, "activity", frame)
				c.Writer.Flush()
			case _, ok := <-tabsCh:
				if !ok {
					return
				}
				writeSSE(c.Writer, "tabs-changed", map[string]string{"type": "tabs-changed"})
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
