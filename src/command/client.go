package command

import (
	"context"
	"time"
	"wserver/src/client"
	"wserver/src/config"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Client struct {
	Logger *logrus.Logger
}

func (cmd Client) Command(ctx context.Context) *cobra.Command {
	var (
		addr        string
		transport   string
		concurrency int
		timeout     time.Duration
	)

	c := &cobra.Command{
		Use:   "client [uri...]",
		Short: "fetch files from a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, uris []string) error {
			t := config.Transport(transport)
			if t != config.TCPTransport && t != config.QUICTransport {
				return errors.Wrapf(config.ErrInvalidConfig, "unknown transport %q", transport)
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return cmd.main(ctx, client.NewClient(addr, t, concurrency, cmd.Logger), uris)
		},
	}

	flags := c.Flags()
	flags.StringVarP(&addr, "addr", "a", "localhost:10000", "server address")
	flags.StringVar(&transport, "transport", string(config.TCPTransport), "tcp or quic")
	flags.IntVarP(&concurrency, "concurrency", "c", 1, "requests in flight")
	flags.DurationVar(&timeout, "timeout", 0, "overall deadline, 0 for none")

	return c
}

func (cmd Client) main(ctx context.Context, c *client.Client, uris []string) error {
	results, err := c.Fetch(ctx, uris)
	if err != nil {
		return errors.Wrap(err, "client : fetch")
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		cmd.Logger.WithFields(logrus.Fields{
			"status":  r.Status,
			"bytes":   r.Bytes,
			"elapsed": r.Elapsed,
		}).Info(r.URI)
	}

	totals := c.Stats().Totals()
	cmd.Logger.WithFields(logrus.Fields{
		"completed":      totals.Completed,
		"failed":         totals.Failed,
		"bytes":          totals.Bytes,
		"avg_delay":      totals.AvgDelay(),
		"avg_throughput": c.Stats().AvgThroughput(),
	}).Info("client : summary")

	if failed > 0 {
		return errors.Errorf("client : %d of %d requests failed", failed, len(results))
	}
	return nil
}
