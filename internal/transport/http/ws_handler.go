package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/transport"
)

// LineServer serves one framed connection. *transport.Handler implements it.
type LineServer interface {
	Serve(ctx context.Context, conn transport.LineConn)
}

// WSHandler upgrades HTTP connections and runs the line protocol over
// text messages, one line per message.
type WSHandler struct {
	lines        LineServer
	maxLineBytes int
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(lines LineServer, maxLineBytes int, logger *zerolog.Logger) stdhttp.Handler {
	if maxLineBytes <= 0 {
		maxLineBytes = proto.DefaultMaxLineBytes
	}
	return &WSHandler{lines: lines, maxLineBytes: maxLineBytes, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	conn.SetReadLimit(int64(h.maxLineBytes))

	h.lines.Serve(r.Context(), &wsConn{conn: conn, remote: r.RemoteAddr})
}

// wsConn adapts a websocket to transport.LineConn.
type wsConn struct {
	conn   *websocket.Conn
	remote string
}

var _ transport.LineConn = (*wsConn)(nil)

func (c *wsConn) ReadLine(ctx context.Context) (string, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return "", io.EOF
		case websocket.StatusMessageTooBig:
			return "", proto.ErrLineTooLong
		}
		return "", fmt.Errorf("ws read: %w", err)
	}
	if typ != websocket.MessageText {
		return "", errors.New("ws read: binary messages are not supported")
	}
	line := strings.TrimRight(string(data), "\r\n")
	return strings.ToValidUTF8(proto.SingleLine(line), "\uFFFD"), nil
}

func (c *wsConn) WriteLine(ctx context.Context, line string) error {
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(proto.SingleLine(line))); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (c *wsConn) RemoteAddr() string { return c.remote }
