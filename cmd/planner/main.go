package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/layer-3/planclient"
	"github.com/layer-3/planclient/adapters/events"
	"github.com/layer-3/planclient/config"
	"github.com/layer-3/planclient/core"
	"github.com/urfave/cli/v2"
)

// app holds what the commands share for one invocation
type app struct {
	planner *planclient.Planner
	out     io.Writer

	expiredOnce sync.Once
	expired     chan struct{}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	a := &app{expired: make(chan struct{})}

	return &cli.App{
		Name:  "planner",
		Usage: "manage your schedule, tasks and notes from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to planner.yaml", EnvVars: []string{"PLANNER_CONFIG"}},
			&cli.StringFlag{Name: "base-url", Usage: "planner API base URL"},
			&cli.StringFlag{Name: "store", Usage: "session store driver (file, redis, memory)"},
			&cli.StringFlag{Name: "session", Usage: "session file for the file store"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Before: a.setup,
		After:  a.teardown,
		Commands: []*cli.Command{
			loginCommand(a),
			registerCommand(a),
			logoutCommand(a),
			statusCommand(a),
			notesCommand(a),
			tasksCommand(a),
			activitiesCommand(a),
			planCommand(a),
		},
		ExitErrHandler: a.handleExit,
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("base-url") {
		cfg.API.BaseURL = c.String("base-url")
	}
	if c.IsSet("store") {
		cfg.Store.Driver = c.String("store")
	}
	if c.IsSet("session") {
		cfg.Store.Path = c.String("session")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := config.NewLogger(c.App.ErrWriter, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	a.out = c.App.Writer
	a.planner, err = planclient.Open(c.Context, cfg, planclient.Options{Logger: logger})
	if err != nil {
		return err
	}

	return a.planner.OnUnauthenticated(c.Context, func(ev events.UnauthenticatedEvent) {
		a.expiredOnce.Do(func() {
			fmt.Fprintf(c.App.ErrWriter, "session expired (%s), run `planner login`\n", ev.Reason)
			close(a.expired)
		})
	})
}

func (a *app) teardown(*cli.Context) error {
	if a.planner == nil {
		return nil
	}
	return a.planner.Close()
}

// handleExit waits briefly for the session-expired notice so it is printed before exiting
func (a *app) handleExit(c *cli.Context, err error) {
	if err == nil || !errors.Is(err, core.ErrUnauthenticated) {
		return
	}
	select {
	case <-a.expired:
	case <-time.After(time.Second):
	}
}
