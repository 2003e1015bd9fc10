package command

import (
	"context"
	"wserver/src/config"
	"wserver/src/server"
	"wserver/src/server/scheduler"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Server struct {
	Logger *logrus.Logger
}

func (cmd Server) Command(ctx context.Context) *cobra.Command {
	cfg := config.DefaultConfig()
	var policy, transport, level string

	c := &cobra.Command{
		Use:   "server",
		Short: "serve files from a directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg.Policy = scheduler.QueuePolicy(policy)
			cfg.Transport = config.Transport(transport)
			lvl, err := logrus.ParseLevel(level)
			if err != nil {
				return errors.Wrap(config.ErrInvalidConfig, err.Error())
			}
			cfg.LogLevel = lvl
			return cmd.main(ctx, cfg)
		},
	}

	flags := c.Flags()
	flags.StringVarP(&cfg.RootDir, "root", "d", cfg.RootDir, "directory to serve files from")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "address to bind")
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	flags.IntVarP(&cfg.Threads, "threads", "t", cfg.Threads, "number of workers")
	flags.IntVarP(&cfg.Buffers, "buffers", "b", cfg.Buffers, "capacity of the work queue")
	flags.StringVarP(&policy, "policy", "s", string(cfg.Policy), "queue policy: fifo or sff")
	flags.StringVar(&transport, "transport", string(cfg.Transport), "tcp or quic")
	flags.StringVar(&level, "log-level", cfg.LogLevel.String(), "log level")
	flags.StringVar(&cfg.MetricsPath, "metrics", "", "per-request CSV file")
	flags.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "period of the work-conserving CSV")
	flags.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "read deadline while sizing a request, 0 for none")

	return c
}

func (cmd Server) main(ctx context.Context, cfg config.Config) error {
	cmd.Logger.SetLevel(cfg.LogLevel)

	s, err := server.NewServer(cfg, cmd.Logger)
	if err != nil {
		return errors.Wrap(err, "server : failed to create")
	}

	if err := s.Start(ctx); err != nil {
		return errors.Wrap(err, "server : failed to serve")
	}

	if n := s.QueueLen(); n > 0 {
		cmd.Logger.Warnf("server : stopped with %d connections still queued", n)
	} else {
		cmd.Logger.Info("server : stopped")
	}
	return nil
}
