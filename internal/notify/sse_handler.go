package notify

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"pos-backend/internal/auth"
)

// StreamHandler serves the invoice feed over server-sent events.
// GET /api/events/invoices. Non-admins are pinned to their own branch.
func StreamHandler(hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var branchID uint
		if user.Can().CanManageBranches {
			if bid := c.QueryInt("branch_id"); bid > 0 {
				branchID = uint(bid)
			}
		} else {
			if user.BranchID == nil {
				return fiber.NewError(fiber.StatusForbidden, "account has no branch")
			}
			branchID = *user.BranchID
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		events, cancel := hub.Subscribe(branchID)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cancel()

			// Heartbeats let the client notice a dead connection; a failed
			// flush tells us the client is gone.
			heartbeat := time.NewTicker(15 * time.Second)
			defer heartbeat.Stop()

			for {
				select {
				case snap, ok := <-events:
					if !ok {
						return
					}
					payload, err := json.Marshal(snap)
					if err != nil {
						continue
					}
					if _, err := w.WriteString("event: invoice_created\ndata: " + string(payload) + "\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				case <-heartbeat.C:
					if _, err := w.WriteString(": ping\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		}))
		return nil
	}
}
