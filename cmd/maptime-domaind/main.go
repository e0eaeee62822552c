package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/g960059/maptime/internal/domainsvc"
)

func main() {
	var (
		catalogPath string
		addr        string
		buckets     int
		logLevel    string
	)
	fs := pflag.NewFlagSet("maptime-domaind", pflag.ContinueOnError)
	fs.StringVar(&catalogPath, "catalog", "catalog.yaml", "YAML catalog of layers and dimension values")
	fs.StringVar(&addr, "addr", "127.0.0.1:8090", "listen address")
	fs.IntVar(&buckets, "buckets", 0, "histogram buckets when a request has no resolution")
	fs.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fatal(err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		fatal(fmt.Errorf("invalid --log-level %q", logLevel))
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	catalog, err := domainsvc.LoadCatalog(catalogPath)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := domainsvc.NewServer(catalog,
		domainsvc.WithLogger(logger),
		domainsvc.WithHistogramBuckets(buckets),
	)
	if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
	logger.Info("domain service stopped")
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "maptime-domaind: %v\n", err)
	os.Exit(1)
}
