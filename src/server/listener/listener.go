package listener

import (
	"context"
	"net"
	"wserver/src/server/conn"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("listener closed")

// A source of connection handles.
type Listener interface {
	// Blocks until a connection arrives, the context is done or the listener
	// is closed.
	Accept(ctx context.Context) (*conn.Conn, error)

	Close() error

	Addr() net.Addr
}
