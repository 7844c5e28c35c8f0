package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/transport"
)

// Conn frames a net.Conn as newline-delimited UTF-8 lines.
type Conn struct {
	nc     net.Conn
	reader *proto.LineReader
}

var _ transport.LineConn = (*Conn)(nil)

// NewConn wraps nc. Lines longer than maxLineBytes fail with proto.ErrLineTooLong.
func NewConn(nc net.Conn, maxLineBytes int) *Conn {
	return &Conn{
		nc:     nc,
		reader: proto.NewLineReader(nc, maxLineBytes),
	}
}

// ReadLine blocks until a full line arrives or the context deadline passes.
func (c *Conn) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	deadline, _ := ctx.Deadline()
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}
	return c.reader.ReadLine()
}

// WriteLine writes one framed line.
func (c *Conn) WriteLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := proto.WriteLine(c.nc, line); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
