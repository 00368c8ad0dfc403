package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/schoolmsg/internal/app"
	"github.com/matheus3301/schoolmsg/internal/config"
	"github.com/matheus3301/schoolmsg/internal/lock"
	"github.com/matheus3301/schoolmsg/internal/profile"
	"github.com/matheus3301/schoolmsg/internal/tui"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.schoolmsg/config.toml)")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	profileName := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var ui *tui.App
	fxApp := fx.New(
		fx.NopLogger,
		app.Module(app.Params{Profile: profileName, Config: cfg}),
		fx.Populate(&ui),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), fxApp.StartTimeout())
	err = fxApp.Start(startCtx)
	cancel()
	if err != nil {
		var locked *lock.ProfileLockedError
		if errors.As(err, &locked) {
			fmt.Fprintf(os.Stderr, "%v\nclose the other client or pick another profile with --profile\n", locked)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCtx.Done()
		ui.Stop()
	}()

	runErr := ui.Run()
	stopSignals()

	stopCtx, cancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	cancel()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// loadConfig reads the config file (defaults when the default path is
// missing), applies .env and SCHOOLMSG_* overrides and validates the result.
func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = profile.ConfigPath()
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := config.LoadEnv(cfg, profile.EnvPath()); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config (set [user] id in %s or SCHOOLMSG_USER_ID): %w", path, err)
	}
	return cfg, nil
}
