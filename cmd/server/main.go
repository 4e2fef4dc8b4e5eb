package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/socketio-chat/internal/config"
	"github.com/omochice/socketio-chat/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return exitConfig, err
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}
	if err := cfg.Validate(); err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Address:      cfg.ListenAddr,
		PingInterval: cfg.PingInterval,
		PingTimeout:  cfg.PingTimeout,
	}, log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return exitRuntime, err
	case <-ctx.Done():
		log.Info("Shutting down...")
		srv.Stop()
	}

	if err := <-errChan; err != nil && !errors.Is(err, server.ErrServerStopped) {
		return exitRuntime, err
	}
	return exitOK, nil
}
