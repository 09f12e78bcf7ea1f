// Package session owns one accepted connection for its lifetime: a strict
// read-frame, dispatch, write-frame loop. Requests within a session are
// never pipelined; reply N is written before request N+1 is read.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/victornm/quizd/internal/dispatch"
	"github.com/victornm/quizd/internal/telemetry"
	"github.com/victornm/quizd/internal/wire"
)

type Handler struct {
	conn net.Conn
	d    *dispatch.Dispatcher

	// userID is the identity from the last successful LOGIN. Recorded for
	// logging; the protocol does not bind commands to it.
	userID string
}

func NewHandler(conn net.Conn, d *dispatch.Dispatcher) *Handler {
	return &Handler{conn: conn, d: d}
}

// Serve runs the session until the client sends the disconnect sentinel,
// the stream breaks, or ctx is canceled. The connection is always closed on
// return.
func (h *Handler) Serve(ctx context.Context) {
	defer h.conn.Close()

	// Unblock pending reads/writes when the server shuts down.
	stop := context.AfterFunc(ctx, func() { h.conn.Close() })
	defer stop()

	telemetry.SessionStarted()
	defer telemetry.SessionEnded()

	remote := h.conn.RemoteAddr().String()
	slog.InfoContext(ctx, "session: connected", "remote", remote)

	for {
		payload, err := wire.ReadFrame(h.conn)
		if err != nil {
			h.logReadErr(ctx, remote, err)
			return
		}
		telemetry.FrameRead(len(payload))

		res := h.d.Dispatch(ctx, string(payload))
		if res.LoginUserID != "" {
			h.userID = res.LoginUserID
		}

		if err := wire.WriteFrame(h.conn, []byte(res.Reply)); err != nil {
			slog.WarnContext(ctx, "session: write reply failed", "remote", remote, "error", err)
			return
		}
		telemetry.FrameWritten(len(res.Reply))

		if res.Disconnect {
			slog.InfoContext(ctx, "session: client disconnected", "remote", remote, "user", h.userID)
			return
		}
	}
}

func (h *Handler) logReadErr(ctx context.Context, remote string, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		slog.InfoContext(ctx, "session: connection closed", "remote", remote, "user", h.userID)
	case errors.Is(err, wire.ErrMalformedLength):
		// No resynchronization is possible without a parsable header.
		slog.WarnContext(ctx, "session: malformed frame, dropping connection", "remote", remote, "error", err)
	default:
		slog.WarnContext(ctx, "session: read failed", "remote", remote, "error", err)
	}
}
