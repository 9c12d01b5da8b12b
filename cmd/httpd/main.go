// Command httpd runs the callsight real-time call recommendation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/callsight/callsight/internal/bootstrap"
	"github.com/callsight/callsight/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "callsight: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	app, err := bootstrap.New(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		app.Log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			cancel()
			_ = app.Shutdown(context.Background())
			return err
		}
	}

	cancel()
	return app.Shutdown(context.Background())
}
