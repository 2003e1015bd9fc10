package server_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"wserver/src/config"
	"wserver/src/model"
	"wserver/src/server"
	"wserver/src/server/conn"
	"wserver/src/server/handler"
	"wserver/src/server/listener"
	"wserver/src/server/scheduler"
	"wserver/src/server/worker"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot(t *testing.T, files map[string]int) string {
	t.Helper()
	root := t.TempDir()
	for name, size := range files {
		data := []byte(strings.Repeat("x", size))
		require.NoError(t, os.WriteFile(filepath.Join(root, name), data, 0o644))
	}
	return root
}

// Starts s on a random local port and returns its address.
func serve(t *testing.T, s *server.Server) string {
	t.Helper()
	l, err := listener.ListenTCP(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Serve(ctx, l)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.Nil(t, err)
		case <-time.After(5 * time.Second):
			t.Error("accept loop did not stop")
		}
	})
	return l.Addr().String()
}

// Sends a request and returns the still open connection.
func send(t *testing.T, addr, uri string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = io.WriteString(c, "GET "+uri+" HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	return c
}

func receive(t *testing.T, c net.Conn) (*model.Response, string) {
	t.Helper()
	defer c.Close()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))

	reader := bufio.NewReader(c)
	res, err := model.ReadResponseHeader(reader)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	return res, string(body)
}

func TestServer_ServesFiles(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.DefaultConfig()
	cfg.RootDir = newRoot(t, map[string]int{"a.txt": 3, "b.txt": 5})
	cfg.Threads = 2
	cfg.Buffers = 2
	cfg.MetricsPath = filepath.Join(t.TempDir(), "requests.csv")

	s, err := server.NewServer(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.Nil(t, s.Close()) })
	addr := serve(t, s)

	// Open all requests first so several wait in the queue at once.
	var pending []net.Conn
	for i := 0; i < 10; i++ {
		name := "/a.txt"
		if i%2 == 1 {
			name = "/b.txt"
		}
		pending = append(pending, send(t, addr, name))
	}
	for i, c := range pending {
		size := 3
		if i%2 == 1 {
			size = 5
		}
		res, body := receive(t, c)
		assert.Equal(t, model.StatusOK, res.Status)
		assert.Equal(t, strings.Repeat("x", size), body)
	}

	res, _ := receive(t, send(t, addr, "/nope.txt"))
	assert.Equal(t, model.StatusNotFound, res.Status)

	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().Completed == 11
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(11), s.Metrics().Snapshot().Enqueued)
	assert.LessOrEqual(t, s.Metrics().Snapshot().MaxQueueLen, 2)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg.MetricsPath), "work_conserving.csv"))
}

// Records the request lines in the order they are served and holds the first
// request until released.
type gatedHandler struct {
	inner worker.Handler

	mu    sync.Mutex
	order []string
	gate  chan struct{}
}

func (h *gatedHandler) Handle(c *conn.Conn) error {
	line, _ := c.RequestLine()

	h.mu.Lock()
	h.order = append(h.order, strings.Fields(line)[1])
	first := len(h.order) == 1
	h.mu.Unlock()

	if first {
		<-h.gate
	}
	return h.inner.Handle(c)
}

func (h *gatedHandler) served() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.order...)
}

func startGated(t *testing.T, policy scheduler.QueuePolicy, files map[string]int) (*server.Server, *gatedHandler, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := config.DefaultConfig()
	cfg.RootDir = newRoot(t, files)
	cfg.Threads = 1
	cfg.Buffers = 4
	cfg.Policy = policy

	fh := handler.NewFileHandler(cfg.RootDir, logger)
	h := &gatedHandler{inner: fh, gate: make(chan struct{})}
	s, err := server.New(cfg, h, fh, logger)
	require.NoError(t, err)
	return s, h, serve(t, s)
}

// Queue four requests behind a busy worker and check the order they are
// served in.
func orderServed(t *testing.T, policy scheduler.QueuePolicy) []string {
	files := map[string]int{"blocker": 1, "big": 30, "small": 10, "mid": 20}
	s, h, addr := startGated(t, policy, files)

	first := send(t, addr, "/blocker")
	assert.Eventually(t, func() bool { return len(h.served()) == 1 }, 5*time.Second, 5*time.Millisecond)

	var pending []net.Conn
	for _, uri := range []string{"/big", "/small", "/missing", "/mid"} {
		pending = append(pending, send(t, addr, uri))
		n := len(pending)
		assert.Eventually(t, func() bool { return s.QueueLen() == n }, 5*time.Second, 5*time.Millisecond)
	}

	close(h.gate)
	receive(t, first)
	for _, c := range pending {
		receive(t, c)
	}
	return h.served()
}

func TestServer_FIFOOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"/blocker", "/big", "/small", "/missing", "/mid"},
		orderServed(t, scheduler.FifoQueue))
}

// A missing file cannot be sized, so it counts as the smallest.
func TestServer_SFFOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"/blocker", "/missing", "/small", "/mid", "/big"},
		orderServed(t, scheduler.SmallestFileFirstQueue))
}

func TestServer_InvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.Buffers = 0

	s, err := server.NewServer(cfg, logger)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = config.DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.Policy = scheduler.SmallestFileFirstQueue
	s, err = server.New(cfg, worker.HandlerFunc(func(*conn.Conn) error { return nil }), nil, logger)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
