package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"helmlink/internal/config"
	"helmlink/internal/export"
	"helmlink/internal/service"
	"helmlink/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./helmlink.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := log.New(logSink(cfg.Log), "", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := service.New(cfg, logger)
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	logger.Printf("helmlink starting")
	logger.Printf("nmea0183 tcp=%s nmea2000 udp=%s", cfg.NMEA0183.Addr, cfg.NMEA2000.Addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })

	if cfg.Web.Enable {
		logger.Printf("status server on %s", cfg.Web.Addr)
		g.Go(func() error {
			return web.Serve(ctx, cfg.Web.Addr, svc.Manager, svc.Store, svc.Bus, svc.Metrics)
		})
	}

	if cfg.Export.Enable {
		bridge := export.NewBridge(cfg.Export, svc.Bus, logger)
		if err := bridge.Connect(); err != nil {
			logger.Printf("export disabled: %v", err)
		} else {
			g.Go(func() error { return bridge.Run(ctx) })
		}
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Printf("stopped: %v", err)
	}
	logger.Printf("helmlink stopping")
}

func logSink(cfg config.LogConfig) io.Writer {
	if cfg.Path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
}
