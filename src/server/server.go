package server

//go run main.go server -p 10000 -t 4 -b 8 -s sff
import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"
	"wserver/src/config"
	"wserver/src/server/conn"
	"wserver/src/server/handler"
	"wserver/src/server/listener"
	"wserver/src/server/metrics"
	"wserver/src/server/scheduler"
	"wserver/src/server/worker"
	"wserver/src/server/workqueue"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Finds the size hint of a connection for the SFF policy.
type SizeProbe interface {
	Resolve(c *conn.Conn) (uint64, error)
}

type Server struct {
	cfg    config.Config
	logger *log.Logger

	queue   *workqueue.WorkQueue[*conn.Conn]
	pool    *worker.Pool
	probe   SizeProbe
	metrics *metrics.Metrics

	startOnce sync.Once
}

// Creates a server that serves files from cfg.RootDir.
func NewServer(cfg config.Config, logger *log.Logger) (*Server, error) {
	files := handler.NewFileHandler(cfg.RootDir, logger)
	return New(cfg, files, files, logger)
}

// Creates a server around any handler. The probe is only used under the SFF
// policy and may be nil otherwise.
func New(cfg config.Config, h worker.Handler, probe SizeProbe, logger *log.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == scheduler.SmallestFileFirstQueue && probe == nil {
		return nil, errors.Wrap(config.ErrInvalidConfig, "sff policy needs a size probe")
	}

	sc, err := scheduler.New(cfg.Policy)
	if err != nil {
		return nil, err
	}
	queue, err := workqueue.New[*conn.Conn](cfg.Buffers, sc)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsPath != "" {
		m = metrics.New(cfg.Threads)
		if err := m.OpenCSV(cfg.MetricsPath); err != nil {
			return nil, err
		}
		wcPath := filepath.Join(filepath.Dir(cfg.MetricsPath), "work_conserving.csv")
		if err := m.StartWorkConserving(wcPath, cfg.MetricsInterval); err != nil {
			m.Close()
			return nil, err
		}
	}

	pool, err := worker.NewPool(cfg.Threads, queue, h, logger, m)
	if err != nil {
		m.Close()
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		queue:   queue,
		pool:    pool,
		probe:   probe,
		metrics: m,
	}, nil
}

// Listens on the configured transport and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var l listener.Listener
	var err error
	switch s.cfg.Transport {
	case config.QUICTransport:
		l, err = listener.ListenQUIC(addr, s.logger)
	default:
		l, err = listener.ListenTCP(ctx, addr)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Serve(ctx, l)
}

// Runs the accept loop on l until ctx is done or l is closed.
//
// The first call also starts the workers. Workers are never stopped, so
// whatever is queued when Serve returns is still served.
func (s *Server) Serve(ctx context.Context, l listener.Listener) error {
	s.startOnce.Do(s.pool.Start)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()

	s.logger.WithFields(log.Fields{
		"addr":    l.Addr().String(),
		"policy":  s.queue.Policy(),
		"threads": s.cfg.Threads,
		"buffers": s.queue.Capacity(),
	}).Info("server listening")

	for {
		c, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, listener.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Warn("accept failed")
			continue
		}
		s.dispatch(c)
	}
}

// Hands c over to the queue. May block while the queue is full.
func (s *Server) dispatch(c *conn.Conn) {
	if s.queue.Policy() == scheduler.SmallestFileFirstQueue {
		// Resolved before Enqueue so that slow clients or disks never hold
		// the queue lock.
		c.SizeHint = s.resolve(c)
	}
	c.EnqueuedAt = time.Now()

	s.queue.Enqueue(c, c.SizeHint)
	s.metrics.OnEnqueue(s.queue.Len())
}

// Any failure counts as size 0.
func (s *Server) resolve(c *conn.Conn) uint64 {
	if s.cfg.ProbeTimeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(s.cfg.ProbeTimeout)); err == nil {
			defer c.SetReadDeadline(time.Time{})
		}
	}

	size, err := s.probe.Resolve(c)
	if err != nil {
		s.logger.WithField("conn", c.ID).WithError(err).Debug("size probe failed")
		return 0
	}
	return size
}

// Number of connections waiting for a worker.
func (s *Server) QueueLen() int {
	return s.queue.Len()
}

// Request counters, or nil when metrics are disabled.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Flushes and closes the metrics files. Workers that are still running keep
// counting but no longer write rows.
func (s *Server) Close() error {
	return s.metrics.Close()
}
