//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ripdaemon/ripd/internal/config"
	"github.com/ripdaemon/ripd/internal/engine"
	"github.com/ripdaemon/ripd/internal/iface"
	"github.com/ripdaemon/ripd/internal/runtime"
	"github.com/ripdaemon/ripd/internal/transport"
)

var (
	sockFile             = flag.String("sock-file", "/var/run/ripd/ripd.sock", "path to the ripd status domain socket")
	configFile           = flag.String("config-file", "/etc/ripd/config.json", "path to the engine config file")
	logFormat            = flag.String("log-format", "json", "log output format: json or console")
	enableVerboseLogging = flag.Bool("v", false, "enables verbose (debug) logging")
	metricsEnable        = flag.Bool("metrics-enable", false, "enable the prometheus metrics server")
	metricsAddr          = flag.String("metrics-addr", "localhost:0", "address to listen on for prometheus metrics")
	versionFlag          = flag.Bool("version", false, "print build version and exit")

	// set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *enableVerboseLogging {
		level = slog.LevelDebug
	}
	var logger *slog.Logger
	if *logFormat == "console" {
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	slog.SetDefault(logger)

	if *versionFlag {
		fmt.Printf("build: %s\n", commit)
		fmt.Printf("version: %s\n", version)
		fmt.Printf("date: %s\n", date)
		os.Exit(0)
	}

	if *metricsEnable {
		buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ripd",
			Name:      "build_info",
			Help:      "Build information of the daemon.",
		}, []string{"version", "commit", "date"})
		buildInfo.WithLabelValues(version, commit, date).Set(1)

		go func() {
			listener, err := net.Listen("tcp", *metricsAddr)
			if err != nil {
				slog.Error("failed to start prometheus metrics listener", "err", err)
				os.Exit(1)
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("prometheus metrics server started", "address", listener.Addr().String())
			if err := http.Serve(listener, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Warn("config: falling back to defaults", "path", *configFile, "err", err)
		cfg = config.New(*configFile, config.Defaults())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ifaces := iface.NewNetlinkProvider(cfg, logger)
	tr, err := transport.NewUDPTransport(ifaces, logger)
	if err != nil {
		slog.Error("transport: failed to open multicast socket", "err", err)
		os.Exit(1)
	}

	engineCfg := engine.Config{
		AdvertInterval:          cfg.AdvertInterval(),
		Timeout:                cfg.Timeout(),
		Garbage:                cfg.Garbage(),
		TickInterval:            cfg.TickInterval(),
		MulticastAddr:           transport.MulticastAddr,
		EnableGarbageCollection: cfg.GarbageCollectionEnabled(),
	}
	eng := engine.New(engineCfg, logger)

	if err := runtime.Run(ctx, eng, ifaces, tr, *sockFile); err != nil {
		slog.Error("runtime error", "err", err)
		os.Exit(1)
	}
}
