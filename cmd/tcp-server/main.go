package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tagserver/internal/config"
	"tagserver/internal/logger"
	"tagserver/internal/metrics"
	httpapi "tagserver/internal/microservices/http-api"
	"tagserver/internal/microservices/http-api/handler"
	"tagserver/internal/microservices/tcp"
	udp "tagserver/internal/microservices/udp-server"
)

func main() {
	// Load config (file, .env, env, defaults)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup structured logging
	slogger, err := logger.Init(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	if err := run(cfg, slogger); err != nil {
		slogger.Error("server_error", "error", err.Error())
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, slogger *slog.Logger) error {
	listener, err := tcp.Listen(cfg.TCPHost, cfg.TCPPort)
	if err != nil {
		return err
	}
	info, err := tcp.DiscoverHost(listener)
	if err != nil {
		listener.Close()
		return err
	}

	// clients need these to connect
	fmt.Printf("\nHostname Name : %s\n", info.Hostname)
	fmt.Printf("Host IP Address : %s\n", info.IP)
	fmt.Printf("Host Port Number : %d\n\n", info.Port)

	var (
		registry *prometheus.Registry
		m        *metrics.Metrics
	)
	if cfg.PrometheusEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewMetrics(registry)
	}

	server := tcp.NewServer(listener.Addr().String(), tcp.ServerConfig{
		MaxMessageSize: cfg.MaxMessageSize,
		IdleTimeout:    cfg.ServerIdleTimeout(),
		MaxConnections: cfg.MaxConnections,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Metrics:        m,
		Logger:         slogger,
	})

	var udpServer *udp.Server
	if cfg.UDPEnabled {
		udpPort := cfg.UDPPort
		if udpPort == 0 {
			udpPort = info.Port
		}
		udpAddr := net.JoinHostPort(cfg.TCPHost, strconv.Itoa(udpPort))
		udpServer, err = udp.NewServer(udpAddr, server.Executor(), cfg.MaxMessageSize, slogger)
		if err != nil {
			listener.Close()
			return err
		}
		fmt.Printf("UDP Port Number : %d\n\n", udpServer.Addr().Port)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	fmt.Printf("Waiting for Clients ......\n\n")
	g.Go(func() error {
		return server.Serve(listener)
	})
	if udpServer != nil {
		g.Go(udpServer.Serve)
	}

	var opsServer *httpapi.Server
	if cfg.HTTPEnabled {
		var gatherer prometheus.Gatherer
		if registry != nil {
			gatherer = registry
		}
		var peers handler.PeerCounter
		if udpServer != nil {
			peers = udpServer
		}
		gin.SetMode(httpapi.ModeFor(cfg.IsProduction()))
		opsServer = httpapi.NewServer(":"+strconv.Itoa(cfg.HTTPPort), server, peers, gatherer, slogger)
		g.Go(opsServer.ListenAndServe)
	}

	// Wait for a shutdown signal or the first server error
	g.Go(func() error {
		<-ctx.Done()
		slogger.Info("shutting_down")
		server.Stop()
		if udpServer != nil {
			udpServer.Shutdown()
		}
		if opsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := opsServer.Shutdown(shutdownCtx); err != nil {
				slogger.Warn("http_shutdown_failed", "error", err.Error())
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slogger.Info("server_stopped_gracefully")
	return nil
}
