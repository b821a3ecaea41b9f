// Package stream delivers samples to websocket clients, one 16-byte
// binary message per sample. A stream client is an ordinary blocking
// reader and competes with every other reader for samples.
package stream

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/sample"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

type Reader interface {
	Read(ctx context.Context, blocking bool) (sample.Sample, error)
}

type Handler struct {
	dev      Reader
	log      logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(dev Reader, log logger.Logger) *Handler {
	return &Handler{
		dev: dev,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		h.log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing we act on; reading only detects departure
	// and services control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	remote := r.RemoteAddr
	h.log.Debug().Str("remote", remote).Msg("Stream client connected")

	sent := 0
	for {
		s, err := h.dev.Read(ctx, true)
		switch {
		case err == nil:
		case errors.HasCode(err, errors.ErrNoData):
			continue
		case errors.HasCode(err, errors.ErrUnavailable):
			h.closeWith(conn, websocket.CloseGoingAway, "device closed")
			h.log.Debug().Str("remote", remote).Int("sent", sent).Msg("Stream ended by device close")
			return
		default:
			h.log.Debug().Str("remote", remote).Int("sent", sent).Err(err).Msg("Stream client gone")
			return
		}

		payload, _ := s.MarshalBinary()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			h.log.Debug().Str("remote", remote).Err(err).Msg("Stream write failed")
			return
		}
		sent++
	}
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout)); err != nil {
		h.log.Debug().Err(err).Msg("Failed to send close frame")
	}
}
