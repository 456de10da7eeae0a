// Command chunkhub serves the index page, generated PNGs and heartbeats over
// the framed protocol.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	chunkhub_config "github.com/Jdcabreradev/chunkhub/config"
	socketlog "github.com/Jdcabreradev/chunkhub/logger"
	"github.com/Jdcabreradev/chunkhub/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chunkhub: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("chunkhub", pflag.ContinueOnError)
	chunkhub_config.RegisterFlags(fs)
	quiet := fs.BoolP("quiet", "q", false, "do not print the startup banner")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := chunkhub_config.Load(fs)
	if err != nil {
		return err
	}

	log, err := socketlog.NewLogger(cfg.LogDir, cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Close()

	if !*quiet {
		printBanner(stdout, cfg)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.Metrics().Handler())
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Log("Metrics", socketlog.INFO, "serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Log("Main", socketlog.INFO, "shutting down")
	return err
}

func printBanner(w io.Writer, cfg *chunkhub_config.SocketConfig) {
	rule := socketlog.Red + "========================================================" + socketlog.Reset
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %schunkhub%s  a toy collection of miscellaneous utilities\n", socketlog.Cyan, socketlog.Reset)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  listening  %s%s://%s%s\n", socketlog.Green, cfg.Protocol.Network(), cfg.Address(), socketlog.Reset)
	fmt.Fprintf(w, "  workers    %d (queue %d)\n", cfg.Workers, cfg.MaxClients)
	fmt.Fprintf(w, "  log mode   %s\n", cfg.LogMode)
	fmt.Fprintf(w, "  routes     %s/%s, %s/hexpng/RRGGBB[AA]%s\n", socketlog.Yellow, socketlog.Reset, socketlog.Yellow, socketlog.Reset)
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  metrics    http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w, rule)
}
