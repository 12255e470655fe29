// Package app is the retouch command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-colorable"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retouch/retouch/configs"
	"github.com/retouch/retouch/internal/db"
	"github.com/retouch/retouch/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:                "retouch",
	Short:              "Edit images through a remote editing service",
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  appPersistentPreRun,
	PersistentPostRunE: appPersistentPostRunE,
}

var (
	configPath        string
	logLevel          string
	serviceURL        string
	telemetryShutdown telemetry.ShutdownFunc
)

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c",
		"", "Configuration file",
	)
	rootCmd.PersistentFlags().StringVarP(
		&logLevel, "level", "l",
		"", "Log level",
	)
	rootCmd.PersistentFlags().StringVarP(
		&serviceURL, "url", "u",
		"", "Editing service base URL",
	)
}

func appPersistentPreRun(cmd *cobra.Command, _ []string) error {
	if configPath == "" {
		p, err := configs.DefaultConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}
	if err := createConfigFile(configPath); err != nil {
		return err
	}

	if err := configs.LoadConfiguration(configPath); err != nil {
		return fmt.Errorf("error loading configuration (%s)", err)
	}

	// Flags win over the file and the environment
	if logLevel != "" {
		configs.Config.Main.LogLevel = logLevel
	}
	if serviceURL != "" {
		configs.Config.Service.URL = serviceURL
	}

	// Enforce debug in dev mode
	if configs.Config.Main.DevMode {
		configs.Config.Main.LogLevel = "debug"
	}

	// Setup logger
	lvl, err := log.ParseLevel(configs.Config.Main.LogLevel)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	if configs.Config.Main.DevMode {
		log.SetFormatter(&log.TextFormatter{
			ForceColors: true,
		})
		log.SetOutput(colorable.NewColorableStderr())
		log.SetLevel(log.TraceLevel)
	}
	log.WithField("log_level", lvl).WithField("config", configPath).Debug()

	telemetryShutdown, err = telemetry.Setup(cmd.Context(), "retouch", configs.Config.Telemetry.Endpoint)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
	}

	return nil
}

func appPersistentPostRunE(_ *cobra.Command, _ []string) error {
	return cleanup()
}

func cleanup() error {
	var errs []error
	if telemetryShutdown != nil {
		errs = append(errs, telemetryShutdown(context.Background()))
		telemetryShutdown = nil
	}
	errs = append(errs, db.Close())
	return errors.Join(errs...)
}

// openJournal opens the journal database and applies its migrations.
func openJournal() error {
	if db.IsOpen() {
		return nil
	}
	if err := db.Open(configs.Config.Journal.Source); err != nil {
		return fmt.Errorf("cannot open journal: %w", err)
	}
	return db.Init()
}

func createConfigFile(filename string) error {
	_, err := os.Stat(filename)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := createFolder(filepath.Dir(filename)); err != nil {
		return err
	}
	return configs.WriteConfig(filename)
}

func createFolder(name string) error {
	stat, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(name, 0o750)
		}
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("'%s' is not a directory", name)
	}

	return nil
}

// Run starts the application. An interrupt cancels the running
// command's context.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP,
	)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := cleanup(); cerr != nil {
		log.WithError(cerr).Warn("cleanup")
	}
	return err
}
