package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mxstsd/mxstsd/internal/cache"
	"github.com/mxstsd/mxstsd/internal/config"
	"github.com/mxstsd/mxstsd/internal/fetcher"
	"github.com/mxstsd/mxstsd/internal/hooks"
	"github.com/mxstsd/mxstsd/internal/log"
	"github.com/mxstsd/mxstsd/internal/resolver"
	"github.com/mxstsd/mxstsd/internal/server"
	"github.com/mxstsd/mxstsd/internal/zone"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start the daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Value: "/etc/mxstsd/mxstsd.yml",
			Usage: "path to configuration file",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	},
	Action: func(c *cli.Context) error {
		return run(c.String("config"), c.Bool("debug"))
	},
}

func run(configPath string, debug bool) error {
	logger := log.Logger{Out: log.WriterOutput(os.Stderr, true), Name: "mxstsd", Debug: debug}

	f, err := os.Open(configPath)
	if err != nil {
		logger.Error("failed to open configuration", err)
		return cli.Exit(fmt.Sprintf("config: %v", err), 2)
	}
	cfg, err := config.Load(f)
	f.Close()
	if err != nil {
		logger.Error("failed to load configuration", err)
		return cli.Exit(fmt.Sprintf("config: %v", err), 2)
	}

	srv := buildServer(cfg, logger)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to bind listener", err)
		return cli.Exit(fmt.Sprintf("bind: %v", err), 2)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(l) }()

	handleSignals(logger)

	if err := <-serveErr; err != nil {
		logger.Error("server exited with error", err)
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func buildServer(cfg *config.Config, logger log.Logger) *server.Server {
	var dnsResolver fetcher.Resolver
	dnsResolver, err := fetcher.NewDNSResolver()
	if err != nil {
		logger.Error("failed to read resolver configuration, falling back to the system resolver", err)
		dnsResolver = net.DefaultResolver
	}

	fetch := fetcher.New(dnsResolver, 0)
	res := resolver.New(fetch, 0)
	c, err := cache.New(res, cfg.Cache.Options.CacheSize)
	if err != nil {
		// Only reachable if cache_size survived validation as <= 0, which
		// config.Load already rejects.
		panic(err)
	}

	dflt := &zone.Entry{
		Timeout:       config.ZoneTimeout(cfg.DefaultZone),
		StrictTesting: cfg.DefaultZone.StrictTesting,
	}
	var zones []*zone.Entry
	for name, zc := range cfg.Zones {
		zones = append(zones, &zone.Entry{
			Name:          name,
			Timeout:       config.ZoneTimeout(zc),
			StrictTesting: zc.StrictTesting,
		})
	}
	registry := zone.NewRegistry(dflt, zones...)

	return server.New(c, registry, logger)
}

// handleSignals blocks until a termination signal is received and runs the
// shutdown hooks (which close the server's listener); a second
// termination signal forces an immediate exit without waiting for
// in-flight connections to drain.
func handleSignals(logger log.Logger) {
	sig := make(chan os.Signal, 5)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)

	for {
		switch s := <-sig; s {
		case syscall.SIGHUP:
			logger.Msg("signal received, rotating logs", "signal", s.String())
			hooks.Run(hooks.EventLogRotate)
		default:
			go func() {
				s := <-sig
				logger.Msg("forced shutdown due to second signal", "signal", s.String())
				os.Exit(1)
			}()

			logger.Msg("signal received, shutting down gracefully", "signal", s.String())
			// srv registered its own Close as an EventShutdown hook when
			// it started serving.
			hooks.Run(hooks.EventShutdown)
			return
		}
	}
}
