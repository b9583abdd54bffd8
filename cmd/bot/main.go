package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"hwbot/internal/app"
	"hwbot/internal/config"
	logx "hwbot/pkg/logx"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml); empty means env only")
	flag.StringVar(&envPath, "env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	boot := logx.NewConsole("info").With(logx.String("comp", "boot"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadDotEnv(envPath); err != nil {
		boot.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
	env, err := config.ReadEnv(ctx, nil)
	if err != nil {
		boot.Error("fatal", logx.Err(err))
		os.Exit(1)
	}

	a, err := app.NewApp(config.NewManager(cfgPath, env, boot))
	if err != nil {
		boot.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("fatal start", logx.Err(err))
		os.Exit(1)
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		boot.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		boot.Debug("sd_notify ready sent")
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
		if err := a.Err(); err != nil {
			boot.Error("fatal runtime error", logx.Err(err))
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		boot.Warn("stopped with errors", logx.Err(err))
	}
	if reason == app.StopFatalError {
		os.Exit(1)
	}
}
