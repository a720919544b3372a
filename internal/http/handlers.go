package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"brandlens/internal/model"
	"brandlens/internal/safety"
)

// startScanHandler validates the target URL and launches the scan in the
// background. The response carries the scan id to stream against.
func (s *Server) startScanHandler(c *fiber.Ctx) error {
	var body ScanRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid JSON body",
		})
	}

	mode := model.Mode(body.Mode)
	switch mode {
	case "":
		mode = model.ModeDiscovery
	case model.ModeDiagnosis, model.ModeDiscovery:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   fmt.Sprintf("Unknown mode %q", body.Mode),
		})
	}

	if err := s.policy.ValidateURL(body.URL); err != nil {
		code := "INVALID_URL"
		if errors.Is(err, safety.ErrBlockedHost) {
			code = "BLOCKED_HOST"
		}
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    code,
			Error:   err.Error(),
		})
	}

	sc := s.registry.Start(model.ScanRequest{SeedURL: body.URL, Mode: mode, PreferredLang: body.PreferredLang})

	return c.Status(fiber.StatusAccepted).JSON(ScanStartedResponse{
		Success: true,
		ScanID:  sc.ID,
		Mode:    string(mode),
		URL:     body.URL,
	})
}

// scanSnapshotHandler returns every event recorded so far, for clients that
// poll instead of streaming.
func (s *Server) scanSnapshotHandler(c *fiber.Ctx) error {
	sc, ok := s.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Unknown scan id",
		})
	}

	events, done := sc.Snapshot()
	return c.JSON(fiber.Map{
		"scan_id": sc.ID,
		"done":    done,
		"events":  events,
	})
}

// scanEventsHandler streams the scan's events as SSE. A scan has a single
// live subscriber; reconnects after completion replay the snapshot.
func (s *Server) scanEventsHandler(c *fiber.Ctx) error {
	sc, ok := s.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Unknown scan id",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// Scans can outlive fasthttp's default write deadline.
	_ = c.Context().Conn().SetWriteDeadline(time.Time{})

	log := s.logger.With("scan_id", sc.ID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if _, done := sc.Snapshot(); done {
			events, _ := sc.Snapshot()
			for _, ev := range events {
				if !writeSSE(w, ev) {
					return
				}
			}
			return
		}

		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case ev, open := <-sc.Events():
				if !open {
					return
				}
				if !writeSSE(w, ev) {
					log.Debug("client disconnected mid-stream")
					return
				}
				if ev.Terminal() {
					return
				}
			case <-heartbeat.C:
				// Comment frames keep proxies from idling out the stream.
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			}
		}
	})

	return nil
}

func writeSSE(w *bufio.Writer, ev model.ScanEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return false
	}
	return w.Flush() == nil
}

// screenshotHandler serves captured homepage screenshots by cache id.
func (s *Server) screenshotHandler(c *fiber.Ctx) error {
	blob, ok := s.screenshots.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Unknown screenshot id",
		})
	}

	c.Set("Content-Type", blob.MIME)
	c.Set("Cache-Control", "public, max-age=3600")
	return c.Send(blob.Bytes)
}
