package listener

import (
	"context"
	"net"
	"wserver/src/server/conn"

	"github.com/pkg/errors"
)

type TCPListener struct {
	inner net.Listener
}

func ListenTCP(ctx context.Context, addr string) (*TCPListener, error) {
	lc := net.ListenConfig{Control: control}
	inner, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen tcp %s", addr)
	}
	return &TCPListener{inner: inner}, nil
}

// The context is not consulted once Accept blocks; Close the listener to
// unblock it.
func (l *TCPListener) Accept(ctx context.Context) (*conn.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := l.inner.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return conn.New(c, c.RemoteAddr().String()), nil
}

func (l *TCPListener) Close() error {
	return l.inner.Close()
}

func (l *TCPListener) Addr() net.Addr {
	return l.inner.Addr()
}
