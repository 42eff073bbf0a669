package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/logging"
	"github.com/wudi/urlforward/internal/routing"
	"github.com/wudi/urlforward/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var routeFiles stringList
	configPath := flag.String("config", "", "Path to service configuration file")
	flag.Var(&routeFiles, "routes", "Route file or glob, repeatable; earlier files take precedence")
	defaultsPath := flag.String("defaults", "", "File holding the \"::dummy::\" default record")
	listen := flag.String("listen", "", "Address of the forwarding server")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	debug := flag.Bool("debug", false, "Reload routes on every request and show failure details")
	validateOnly := flag.Bool("validate", false, "Validate configuration and routes, then exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("urlforward %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.NewLoader().Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var overlay config.Config
	overlay.Routes.Files = routeFiles
	overlay.Routes.Defaults = *defaultsPath
	overlay.Server.Address = *listen
	overlay.Logging.Level = *logLevel
	overlay.Debug = *debug
	merged := config.MergeNonZero(*cfg, overlay)
	cfg = &merged

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		set, err := config.NewLoader().LoadRoutes(cfg.Routes.Files, cfg.Routes.Defaults)
		if err == nil {
			_, err = routing.Resolve(set.Routes, set.Template)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid routes: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Rotation: logging.Rotation{
			MaxSize:    cfg.Logging.Rotation.MaxSize,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			Compress:   cfg.Logging.Rotation.Compress,
			LocalTime:  cfg.Logging.Rotation.LocalTime,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("Starting urlforward",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Strings("routes", cfg.Routes.Files),
		zap.Bool("debug", cfg.Debug),
	)

	srv, err := server.New(cfg)
	if err != nil {
		logging.Error("Failed to create server", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logging.Error("Server error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
