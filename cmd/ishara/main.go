// Package main runs the ishara sign letter recognizer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/srujkamble02/ishara/internal/app"
	"github.com/srujkamble02/ishara/internal/capture"
	"github.com/srujkamble02/ishara/internal/config"
	"github.com/srujkamble02/ishara/internal/server"
	"github.com/srujkamble02/ishara/internal/server/api"
	"github.com/srujkamble02/ishara/internal/store"
	"github.com/srujkamble02/ishara/internal/tray"
)

const (
	flagConfig       = "config"
	flagModel        = "model"
	flagCamera       = "camera"
	flagVideo        = "video"
	flagListen       = "listen"
	flagPlugins      = "plugins"
	flagDB           = "db"
	flagStatic       = "static"
	flagThreshold    = "threshold"
	flagMinAgreement = "min-agreement"
	flagNoTray       = "no-tray"
	flagSaveConfig   = "save-config"
	flagDebug        = "debug"

	shutdownTimeout = 5 * time.Second
)

func main() {
	cliApp := &cli.App{
		Name:  "ishara",
		Usage: "recognize sign language letters from the camera",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (default ~/.ishara/config.json if present)",
			},
			&cli.StringFlag{Name: flagModel, Usage: "classifier artifact `FILE`"},
			&cli.IntFlag{Name: flagCamera, Usage: "camera device `ID`"},
			&cli.StringFlag{Name: flagVideo, Usage: "read frames from a video `FILE` instead of the camera"},
			&cli.StringFlag{Name: flagListen, Usage: "HTTP listen `ADDR`"},
			&cli.StringFlag{Name: flagPlugins, Usage: "plugin `DIR`"},
			&cli.StringFlag{Name: flagDB, Usage: "settings database `FILE`"},
			&cli.StringFlag{Name: flagStatic, Usage: "serve a web viewer from `DIR`"},
			&cli.Float64Flag{Name: flagThreshold, Usage: "minimum confidence to display a letter"},
			&cli.IntFlag{Name: flagMinAgreement, Usage: "consecutive confident frames needed to switch letters"},
			&cli.BoolFlag{Name: flagNoTray, Usage: "run without the system tray"},
			&cli.BoolFlag{Name: flagSaveConfig, Usage: "write the effective configuration to the config file and exit"},
			&cli.BoolFlag{Name: flagDebug, Aliases: []string{"vvv"}, Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// configPath is the --config file or ~/.ishara/config.json.
func configPath(c *cli.Context) string {
	if path := c.String(flagConfig); path != "" {
		return path
	}
	return filepath.Join(config.DataDir(), "config.json")
}

// loadConfig reads the config file. A missing default file is not an error.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := configPath(c)
	if !c.IsSet(flagConfig) {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
	}
	return config.LoadFile(path)
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(c *cli.Context, cfg config.Config) (config.Config, error) {
	if c.IsSet(flagModel) {
		cfg.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagCamera) {
		cfg.CameraID = c.Int(flagCamera)
	}
	if c.IsSet(flagVideo) {
		cfg.VideoFile = c.String(flagVideo)
	}
	if c.IsSet(flagListen) {
		cfg.ListenAddr = c.String(flagListen)
	}
	if c.IsSet(flagPlugins) {
		cfg.PluginDir = c.String(flagPlugins)
	}
	if c.IsSet(flagDB) {
		cfg.DBPath = c.String(flagDB)
	}
	if c.IsSet(flagStatic) {
		cfg.StaticDir = c.String(flagStatic)
	}
	if c.IsSet(flagThreshold) {
		cfg.Threshold = c.Float64(flagThreshold)
	}
	if c.IsSet(flagMinAgreement) {
		cfg.MinAgreement = c.Int(flagMinAgreement)
	}
	if c.Bool(flagDebug) {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func cameraConfig(cfg config.Config) capture.Config {
	if cfg.VideoFile != "" {
		cc := capture.DefaultConfig()
		cc.Source = cfg.VideoFile
		return cc
	}
	return capture.DeviceConfig(cfg.CameraID)
}

func run(c *cli.Context) (err error) {
	fileCfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(fileCfg.Debug || c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer logger.Sync()

	// flags may move the database, so they are applied before opening it
	base, err := applyFlags(c, fileCfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(base.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(base.DBPath)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer st.Close()

	cfg := base
	if overrides, err := st.Settings().All(); err != nil {
		logger.Warnw("failed to read stored settings", "error", err)
	} else if len(overrides) > 0 {
		applied, err := fileCfg.ApplySettings(overrides)
		if err != nil {
			logger.Warnw("ignoring invalid stored settings", "error", err)
		} else if cfg, err = applyFlags(c, applied); err != nil {
			return err
		}
	}

	if c.Bool(flagSaveConfig) {
		path := configPath(c)
		if err := cfg.Save(path); err != nil {
			return err
		}
		logger.Infow("configuration saved", "path", path)
		return nil
	}

	a, err := app.New(app.Config{
		CameraConfig:    cameraConfig(cfg),
		DetectorConfig:  cfg.DetectorConfig(),
		Loader:          app.FileLoader(cfg.ModelPath),
		Gate:            cfg.GateConfig(),
		MotionThreshold: cfg.MotionThreshold,
		PluginDir:       cfg.PluginDir,
		SpeakTimeout:    cfg.SpeakTimeoutDuration(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return multierr.Append(fmt.Errorf("start recognizer: %w", err), a.Stop())
	}
	a.SetEnabled(true)

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	srv := server.New(server.Config{
		StaticDir: staticDir,
		App:       a,
		Store:     st,
		Base:      fileCfg,
		Resolve: func(next config.Config) (config.Config, error) {
			return applyFlags(c, next)
		},
		OnSettings: func(next config.Config) {
			a.ApplyTuning(next.GateConfig(), next.MotionThreshold)
		},
		Logger: logger,
	})

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := a.Pipeline().Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- cli.Exit(api.MessageFailed+": "+err.Error(), 1)
		}
	}()

	var runErr error
	if c.Bool(flagNoTray) {
		select {
		case <-ctx.Done():
		case runErr = <-errCh:
		}
	} else {
		runErr = runTray(ctx, stop, a, cfg, errCh, logger)
	}

	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Combine(runErr, srv.Shutdown(shutdownCtx), a.Stop())
}

// runTray blocks in the tray loop until Quit, a signal or a fatal error.
func runTray(ctx context.Context, stop func(), a *app.App, cfg config.Config, errCh <-chan error, logger *zap.SugaredLogger) error {
	tr := tray.New()
	tr.OnToggle(a.SetEnabled)
	tr.OnSpeak(func() {
		if _, err := a.Speak(); err != nil {
			logger.Debugw("speak failed", "error", err)
		}
	})
	tr.OnOpen(func() {
		if err := openBrowser("http://" + cfg.ListenAddr); err != nil {
			logger.Warnw("failed to open browser", "error", err)
		}
	})
	tr.OnQuit(stop)

	results, cancel := a.Results()
	defer cancel()
	go tr.Watch(results)

	done := make(chan error, 1)
	go func() {
		var err error
		select {
		case <-ctx.Done():
		case err = <-errCh:
		}
		done <- err
		tr.Quit()
	}()

	tr.Run()
	stop()
	return <-done
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.ishara/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
