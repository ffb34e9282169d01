// Command relay-server runs the game-relay protocol core as a
// standalone UDP server.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cheetah-relay/relay-go/server"
)

func main() {
	var (
		listen     string
		configPath string
		showVer    bool
	)
	flag.StringVar(&listen, "listen", "", "UDP listen address, HOST:PORT (overrides config file)")
	flag.StringVar(&configPath, "config", "relay.toml", "path to the TOML config file")
	flag.BoolVar(&showVer, "version", false, "print version information and exit")
	flag.Parse()

	if showVer {
		fmt.Println(versioninfo.Short())
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "relay-server"})
	if lvl := os.Getenv("RELAY_LOG_LEVEL"); lvl != "" {
		parsed, err := log.ParseLevel(lvl)
		if err != nil {
			logger.Fatalf("invalid RELAY_LOG_LEVEL %q: %v", lvl, err)
		}
		logger.SetLevel(parsed)
	}

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if os.Getenv("RELAY_LOG_LEVEL") == "" {
		parsed, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Fatalf("invalid log_level %q: %v", cfg.LogLevel, err)
		}
		logger.SetLevel(parsed)
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if addr := os.Getenv("RELAY_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	logger.Infof("relay-server %s starting, listening on %s", versioninfo.Short(), cfg.Listen)

	reg := prometheus.NewRegistry()
	srv, err := server.New(cfg, reg, logger)
	if err != nil {
		logger.Fatalf("create server: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics listener: %v", err)
		}
	}()

	srv.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("shutting down")
	srv.Shutdown()
	_ = metricsSrv.Close()
}
