package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/core"
	"github.com/vovakirdan/snuz/internal/service/users"
	"github.com/vovakirdan/snuz/internal/store"
	"github.com/vovakirdan/snuz/internal/utils"
)

// WSHandler upgrades /ws/:username to a presence channel bridged to core.Client.
type WSHandler struct {
	hub       *core.Hub
	users     *users.Service
	readLimit int64
	rateLimit float64
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, usersSvc *users.Service, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		users:     usersSvc,
		readLimit: cfg.MaxMessageBytes,
		rateLimit: cfg.WSRateLimit,
		log:       logger,
	}
}

// ServeHTTP handles GET /ws/{username}. The user must exist and belong to a
// group.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	username := r.PathValue("username")

	user, err := h.users.Get(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, stdhttp.StatusNotFound, fmt.Sprintf("user does not exist: %s", username))
			return
		}
		h.log.Error().Err(err).Str("username", username).Msg("ws lookup user")
		writeError(w, stdhttp.StatusInternalServerError, "internal server error")
		return
	}
	if !user.InGroup() {
		writeError(w, stdhttp.StatusConflict, fmt.Sprintf("%s is not in a group", username))
		return
	}

	h.serveConn(w, r, core.NewClient(utils.NewID(), user.Username, *user.GroupID))
}

func writeError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func (h *WSHandler) serveConn(w stdhttp.ResponseWriter, r *stdhttp.Request, client *core.Client) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	if err := h.hub.RegisterClient(client); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)

	log := h.log.With().Str("client_id", client.ID).Str("user", client.Name).Str("group", client.Group).Logger()
	log.Info().Msg("presence channel open")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	log.Info().Msg("presence channel closed")
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.rateLimit)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		if !limiter.Allow() {
			log.Warn().Msg("rate limit exceeded, dropping presence frame")
			continue
		}

		cmd, err := inboundToCommand(client, data)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping invalid presence frame")
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				// Dropped by the hub: finish the close handshake before the
				// read context is cancelled.
				log.Info().Msg("hub closed presence channel")
				return conn.Close(websocket.StatusNormalClosure, "closing")
			}
			payload, ok := outboundFromEvent(event)
			if !ok {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				log.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
