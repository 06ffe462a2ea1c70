package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"delaybot/internal/app"
)

func runCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start every configured bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBots(cmd.Context(), g)
		},
	}
}

func runBots(parent context.Context, g *globalFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	m, err := loadConfig(g)
	if err != nil {
		return err
	}
	a, err := app.New(m)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := a.Start(parent); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopAppStop
	select {
	case s := <-sigs:
		reason = app.ParseStopSignal(s.String())
	case <-a.Done():
		reason = app.StopFatalError
	case <-parent.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
