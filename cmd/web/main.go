package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/de-tools/market-atlas/pkg/runtime/app"
	"github.com/de-tools/market-atlas/pkg/server"
	"github.com/de-tools/market-atlas/pkg/services/config"
)

var cfgPath string

// errServerStopped cancels the workers once the HTTP server has shut down.
var errServerStopped = errors.New("server stopped")

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the web server and workflow workers for Market Atlas",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the YAML configuration file (MARKET_ATLAS_* variables override it)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Log)
	ctx := logger.WithContext(cmd.Context())

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close services")
		}
	}()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	web := server.NewWebAPI(server.Config{
		Addr:            addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Engine: a.Engine,
			Tokens: a.Tokens,
			Logger: logger,
		},
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Engine.Run(ctx)
	})
	if cfg.Refresh.Enabled {
		g.Go(func() error {
			return a.Refresh.Run(ctx)
		})
	}
	g.Go(func() error {
		err := web.Start(ctx)
		if err == nil {
			err = errServerStopped
		}
		return err
	})

	err = g.Wait()
	if errors.Is(err, errServerStopped) {
		return nil
	}
	return err
}
