package conn

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrNoDeadline = errors.New("connection does not support deadlines")

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// A connection handle handed from the listener to a worker.
//
// Whoever holds the handle owns it: the queue while it is enqueued, then the
// worker that dequeued it. Close is idempotent, so the underlying transport is
// closed exactly once no matter how many times Close is called.
type Conn struct {
	ID         uuid.UUID
	RemoteAddr string
	AcceptedAt time.Time
	EnqueuedAt time.Time
	SizeHint   uint64

	inner  io.ReadWriteCloser
	reader *bufio.Reader

	// Cached first line of the request, see RequestLine.
	lineRead    bool
	requestLine string
	lineErr     error

	closeOnce sync.Once
	closeErr  error
	isClosed  atomic.Bool
}

func New(inner io.ReadWriteCloser, remoteAddr string) *Conn {
	return &Conn{
		ID:         uuid.New(),
		RemoteAddr: remoteAddr,
		AcceptedAt: time.Now(),
		inner:      inner,
		reader:     bufio.NewReader(inner),
	}
}

// Returns the first line of the request without its line terminator.
//
// The line is read once and remembered, so the size probe and the handler can
// both ask for it. It must not be called from two goroutines at once.
func (c *Conn) RequestLine() (string, error) {
	if !c.lineRead {
		c.lineRead = true
		line, err := c.reader.ReadSlice('\n')
		if err != nil {
			c.lineErr = errors.Wrap(err, "reading request line")
		} else {
			c.requestLine = strings.TrimRight(string(line), "\r\n")
		}
	}
	return c.requestLine, c.lineErr
}

// The buffered reader positioned after whatever has been consumed so far.
func (c *Conn) Reader() *bufio.Reader {
	return c.reader
}

func (c *Conn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	return c.inner.Write(p)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	if d, ok := c.inner.(readDeadliner); ok {
		return d.SetReadDeadline(t)
	}
	return ErrNoDeadline
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.inner.Close()
		c.isClosed.Store(true)
	})
	return c.closeErr
}

func (c *Conn) IsClosed() bool {
	return c.isClosed.Load()
}
