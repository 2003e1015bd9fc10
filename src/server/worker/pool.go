package worker

import (
	"time"
	"wserver/src/server/conn"
	"wserver/src/server/metrics"
	"wserver/src/server/workqueue"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidSize = errors.New("worker count must be at least 1")

// Services one connection. Closing it is the pool's job.
type Handler interface {
	Handle(c *conn.Conn) error
}

// An adapter to use ordinary functions as handlers.
type HandlerFunc func(c *conn.Conn) error

func (f HandlerFunc) Handle(c *conn.Conn) error {
	return f(c)
}

// A fixed number of workers draining a work queue.
//
// Workers run until the process exits; there is no way to stop them.
type Pool struct {
	size    int
	queue   *workqueue.WorkQueue[*conn.Conn]
	handler Handler
	logger  *log.Logger
	metrics *metrics.Metrics // may be nil
}

func NewPool(
	size int,
	queue *workqueue.WorkQueue[*conn.Conn],
	handler Handler,
	logger *log.Logger,
	m *metrics.Metrics,
) (*Pool, error) {
	if size < 1 {
		return nil, errors.Wrapf(ErrInvalidSize, "got %d", size)
	}
	return &Pool{
		size:    size,
		queue:   queue,
		handler: handler,
		logger:  logger,
		metrics: m,
	}, nil
}

func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		go p.worker(i)
	}
	p.logger.Infof("worker pool: started %d workers", p.size)
}

func (p *Pool) worker(id int) {
	for {
		c := p.queue.Dequeue()
		p.serve(id, c)
	}
}

// Runs the handler on c and closes c, whatever the handler does.
func (p *Pool) serve(id int, c *conn.Conn) {
	startedAt := time.Now()
	p.metrics.OnStart(c, startedAt)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %v", r)
		}
		if err != nil {
			p.logger.WithFields(log.Fields{
				"worker": id,
				"conn":   c.ID,
			}).WithError(err).Warn("request failed")
		}
		if cerr := c.Close(); cerr != nil {
			p.logger.WithField("conn", c.ID).WithError(cerr).Debug("close failed")
		}
		p.metrics.OnComplete(c, startedAt, err)
	}()

	err = p.handler.Handle(c)
}
