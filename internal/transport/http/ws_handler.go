package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalumni/alumnichat/internal/config"
	"github.com/kitalumni/alumnichat/internal/core"
	"github.com/kitalumni/alumnichat/internal/proto"
)

const errCodeRateLimited = "rate_limited"

var errSessionReplaced = errors.New("session replaced by a newer connection")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub          *core.Hub
	server       config.ServerConfig
	reportErrors bool
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:          hub,
		server:       cfg.Server,
		reportErrors: cfg.Hub.ReportErrors,
		log:          logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	origin := r.Header.Get("Origin")
	if !h.server.OriginAllowed(origin) {
		h.log.Warn().Str("origin", origin).Str("remote_addr", r.RemoteAddr).Msg("ws origin rejected")
		stdhttp.Error(w, "origin not allowed", stdhttp.StatusForbidden)
		return
	}

	ctx := r.Context()

	// Origin was checked above against the configured allow-list.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.server.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.server.MaxMessageBytes)
	}

	client := h.hub.NewClient(uuid.NewString())
	if err := h.hub.RegisterClient(client); err != nil {
		h.log.Warn().Err(err).Msg("hub rejected client")
		conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("client_id", client.ID).Str("origin", origin).Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errSessionReplaced):
		status = websocket.StatusPolicyViolation
		reason = err.Error()
	case err != nil && !errors.Is(err, context.Canceled):
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
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Debug().Str("client_id", client.ID).Str("user_id", client.UserID()).Int("status", int(status)).Msg("ws disconnected")
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.server.RateLimitPerMinute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Warn().Str("client_id", client.ID).Str("user_id", client.UserID()).Msg("ws frame rate limited")
			if err := h.writeProtoError(ctx, conn, &proto.Error{Code: errCodeRateLimited, Msg: "too many messages"}); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("malformed ws frame")
			if err := h.writeProtoError(ctx, conn, &proto.Error{Code: errCodeInvalidMessage, Msg: "malformed frame"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("client_id", client.ID).Str("type", inbound.Type).Str("code", protoErr.Code).Msg("ws frame rejected")
			if err := h.writeProtoError(ctx, conn, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if event == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
			if event.Kind == core.EventSessionReplaced {
				return errSessionReplaced
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeProtoError answers a rejected frame. Clients only see it when error reporting is on.
func (h *WSHandler) writeProtoError(ctx context.Context, conn *websocket.Conn, protoErr *proto.Error) error {
	if !h.reportErrors {
		return nil
	}
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr})
}
