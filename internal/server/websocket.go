package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hasanylld/sesbil/internal/capture"
	"github.com/hasanylld/sesbil/internal/transcription"
)

// Text sent on /ws/information when no transcript is available
const (
	msgNotRecognized      = "Ses anlaşılamadı"
	msgServiceUnavailable = "Ses tanıma servisine ulaşılamadı"
	msgStillRecording     = "Kayıt devam ediyor, önce kaydı durdurun."
	msgTranscriptionError = "Ses yazıya çevrilemedi"
)

const closeTimeout = time.Second

// wsSink writes frames to a websocket connection
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSink) SendFrame(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// upgrade switches the connection to a websocket and returns a context that
// is cancelled when the client goes away.
func (h *HTTPServer) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, context.CancelFunc, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	// Long-lived connection: clear any deadline inherited from the server.
	conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancelCause(context.Background())

	// Incoming messages are discarded; a read error means the peer left.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel(err)
				return
			}
		}
	}()

	return conn, ctx, func() { cancel(context.Canceled) }, nil
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	conn.Close()
}

// handleHistogram implements GET /ws/histogram
func (h *HTTPServer) handleHistogram(w http.ResponseWriter, r *http.Request) {
	conn, ctx, cancel, err := h.upgrade(w, r)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.String("endpoint", "/ws/histogram"),
			slog.String("error", err.Error()),
		)
		return
	}
	defer cancel()
	defer closeConn(conn)

	sink := &wsSink{conn: conn, writeTimeout: h.config.Stream.GetWriteTimeoutDuration()}
	err = h.deps.Broadcaster.Subscribe(ctx, r.RemoteAddr, sink)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("Histogram stream closed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("reason", err.Error()),
		)
	}
}

// handleInformation implements GET /ws/information: one text message with
// the transcript, or a description of why there is none, then close.
func (h *HTTPServer) handleInformation(w http.ResponseWriter, r *http.Request) {
	conn, ctx, cancel, err := h.upgrade(w, r)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.String("endpoint", "/ws/information"),
			slog.String("error", err.Error()),
		)
		return
	}
	defer cancel()
	defer closeConn(conn)

	text, err := h.deps.Transcriber.Transcribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		text = informationError(err)
	}

	conn.SetWriteDeadline(time.Now().Add(h.config.Stream.GetWriteTimeoutDuration()))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		h.logger.Debug("Failed to send transcript",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
	}
}

func informationError(err error) string {
	switch {
	case errors.Is(err, transcription.ErrRecognitionFailure):
		return msgNotRecognized
	case errors.Is(err, transcription.ErrRecognitionService):
		return msgServiceUnavailable
	case errors.Is(err, capture.ErrRecording):
		return msgStillRecording
	default:
		return msgTranscriptionError
	}
}
