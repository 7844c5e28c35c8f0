// Package transport runs the per-connection protocol shared by every
// listener: the login handshake, the read loop and the buffered writer.
package transport

import "context"

// LineConn is a framed text connection. ReadLine and WriteLine honour the
// context deadline; Close unblocks a pending ReadLine.
type LineConn interface {
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
	RemoteAddr() string
}
