package client

//go run main.go client -a localhost:10000 -c 8 /index.html /big.bin
import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"
	"wserver/src/client/netstats"
	"wserver/src/config"
	"wserver/src/model"
	"wserver/src/server/listener"

	"github.com/google/uuid"
	"github.com/lucas-clemente/quic-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const statsWindow = 32

type Result struct {
	URI     string
	Status  int
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// Issues GET requests against a server, a bounded number at a time.
type Client struct {
	addr        string
	transport   config.Transport
	concurrency int
	logger      *log.Logger
	stats       *netstats.Collector
}

func NewClient(addr string, transport config.Transport, concurrency int, logger *log.Logger) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{
		addr:        addr,
		transport:   transport,
		concurrency: concurrency,
		logger:      logger,
		stats:       netstats.New(statsWindow),
	}
}

// Fetches every URI and returns the results in the same order.
func (c *Client) Fetch(ctx context.Context, uris []string) ([]Result, error) {
	open, closeAll, err := c.opener(ctx)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	results := make([]Result, len(uris))
	semaphore := NewSemaphore(c.concurrency)
	var wg sync.WaitGroup

	for i, uri := range uris {
		if err := semaphore.Acquire(ctx); err != nil {
			results[i] = Result{URI: uri, Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, uri string) {
			defer func() {
				semaphore.Release()
				wg.Done()
			}()
			results[i] = c.fetch(ctx, open, uri)
		}(i, uri)
	}

	wg.Wait()
	return results, nil
}

type openFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Returns how to open one request channel: a TCP connection, or a stream on
// a shared QUIC connection.
func (c *Client) opener(ctx context.Context) (openFunc, func(), error) {
	if c.transport != config.QUICTransport {
		var dialer net.Dialer
		open := func(ctx context.Context) (io.ReadWriteCloser, error) {
			return dialer.DialContext(ctx, "tcp", c.addr)
		}
		return open, func() {}, nil
	}

	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{listener.NextProto},
	}
	connection, err := quic.DialAddrContext(ctx, c.addr, tlsConf, listener.QUICConfig())
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dial quic %s", c.addr)
	}
	open := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return connection.OpenStreamSync(ctx)
	}
	closeAll := func() {
		connection.CloseWithError(0, "")
	}
	return open, closeAll, nil
}

func (c *Client) fetch(ctx context.Context, open openFunc, uri string) (res Result) {
	res.URI = uri
	id := uuid.New()
	start := time.Now()
	c.stats.RecordSend(id)
	defer func() {
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			c.stats.RecordFailure(id)
		} else {
			c.stats.RecordRecv(id, res.Bytes)
		}
		entry := c.logger.WithFields(log.Fields{
			"req":     id,
			"uri":     uri,
			"status":  res.Status,
			"bytes":   res.Bytes,
			"elapsed": res.Elapsed,
		})
		if res.Err != nil {
			entry.WithError(res.Err).Warn("fetch failed")
		} else {
			entry.Debug("fetched")
		}
	}()

	rwc, err := open(ctx)
	if err != nil {
		res.Err = errors.Wrap(err, "open")
		return
	}
	defer rwc.Close()

	req := model.Request{
		Method:  "GET",
		URI:     uri,
		Version: "HTTP/1.0",
		Headers: map[string]string{"Host": c.addr},
	}
	if err := req.Write(rwc); err != nil {
		res.Err = errors.Wrap(err, "send request")
		return
	}

	reader := bufio.NewReader(rwc)
	header, err := model.ReadResponseHeader(reader)
	if err != nil {
		res.Err = errors.Wrap(err, "read response")
		return
	}
	res.Status = header.Status

	res.Bytes, err = io.Copy(io.Discard, reader)
	if err != nil {
		res.Err = errors.Wrap(err, "read body")
	}
	return
}

// Latency and throughput of every request made so far.
func (c *Client) Stats() *netstats.Collector {
	return c.stats
}
