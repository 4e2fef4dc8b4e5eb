package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/socketio-chat/internal/client"
	"github.com/omochice/socketio-chat/internal/config"
	"github.com/omochice/socketio-chat/internal/session"
	"github.com/omochice/socketio-chat/internal/terminal"
	"github.com/omochice/socketio-chat/internal/transport/ws"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// maxLineSize bounds a single line typed by the user.
const maxLineSize = 1 << 20

func main() {
	code, err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return exitConfig, err
	}

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	noColor := fs.Bool("no-color", false, "Disable coloured output")
	showSummary := fs.Bool("summary", false, "Print message counts on exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}
	if err := cfg.Validate(); err != nil {
		return exitConfig, err
	}

	// Logs go to stderr, stdout carries the conversation only.
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	render := terminal.NewRenderer(stdout, !*noColor)
	socket := client.New(client.Options{
		URL:       cfg.ServerURL,
		Namespace: cfg.Namespace,
		Channel:   cfg.Channel,
	}, ws.Dialer{}, log)
	sess := session.New(socket, render, log, session.Options{
		Channel:    cfg.Channel,
		ReplyDelay: cfg.ReplyDelay,
	})
	sess.Start(ctx)

	render.Println("Type your messages (or 'quit' to exit):")
	readErr := chatLoop(ctx, sess, stdin)
	sess.Close()

	summary := terminal.Summarize(sess.Entries())
	log.Info("Chat ended", "sent", summary.Sent, "received", summary.Received, "notices", summary.Notices)
	if *showSummary {
		terminal.WriteSummary(stderr, summary)
	}
	if readErr != nil {
		return exitRuntime, fmt.Errorf("failed to read input: %w", readErr)
	}
	return exitOK, nil
}

// chatLoop forwards every input line to the session until the input ends,
// the user quits or ctx is done. It returns the error that stopped the
// input, if any.
func chatLoop(ctx context.Context, sess *session.Session, stdin io.Reader) error {
	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// scanErr is written before lines is closed.
				return scanErr
			}
			switch strings.TrimSpace(line) {
			case "quit", "exit":
				return nil
			}
			sess.Send(line)
		}
	}
}
