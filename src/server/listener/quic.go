package listener

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync"
	"time"
	"wserver/src/server/conn"

	"github.com/lucas-clemente/quic-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ALPN protocol spoken by server and client.
const NextProto = "wserver"

func QUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:        5 * time.Minute,
		HandshakeIdleTimeout:  10 * time.Second,
		MaxIncomingStreams:    20000,
		MaxIncomingUniStreams: -1, // requests always use bidirectional streams
	}
}

// Every bidirectional QUIC stream is one request and becomes one connection
// handle.
type QUICListener struct {
	inner  quic.Listener
	logger *log.Logger

	streams chan *conn.Conn
	errs    chan error

	done      chan struct{}
	closeOnce sync.Once
}

// Closing a stream only ends our sending side, so also stop reading.
type quicStream struct {
	quic.Stream
}

func (s quicStream) Close() error {
	s.CancelRead(0)
	return s.Stream.Close()
}

func ListenQUIC(addr string, logger *log.Logger) (*QUICListener, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, errors.Wrap(err, "generating tls config")
	}
	inner, err := quic.ListenAddr(addr, tlsConf, QUICConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "listen quic %s", addr)
	}

	l := &QUICListener{
		inner:   inner,
		logger:  logger,
		streams: make(chan *conn.Conn),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go l.acceptConnections()
	return l, nil
}

func (l *QUICListener) acceptConnections() {
	for {
		connection, err := l.inner.Accept(context.Background())
		if err != nil {
			select {
			case l.errs <- err:
			case <-l.done:
			}
			return
		}
		go l.acceptStreams(connection)
	}
}

// Hands the streams of one connection to Accept until the peer goes away.
func (l *QUICListener) acceptStreams(connection quic.Connection) {
	remote := connection.RemoteAddr().String()
	for {
		stream, err := connection.AcceptStream(context.Background())
		if err != nil {
			l.logger.WithField("remote", remote).WithError(err).Debug("quic connection finished")
			return
		}

		c := conn.New(quicStream{stream}, remote)
		select {
		case l.streams <- c:
		case <-l.done:
			c.Close()
			return
		}
	}
}

func (l *QUICListener) Accept(ctx context.Context) (*conn.Conn, error) {
	select {
	case c := <-l.streams:
		return c, nil
	case err := <-l.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *QUICListener) Close() (err error) {
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.inner.Close()
	})
	return
}

func (l *QUICListener) Addr() net.Addr {
	return l.inner.Addr()
}

// A self-signed certificate; clients are expected to skip verification.
func generateTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
		NextProtos: []string{NextProto},
	}, nil
}
