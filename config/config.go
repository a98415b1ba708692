// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"

	"facebox/pkg/util"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	dbPath         = pflag.String("db", "", "Overrides the database path")
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
)

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")
	v.BindEnv("app.root", "app_root")

	v.BindEnv("db.path", "db_path")

	v.BindEnv("uploads.allowed_exts", "uploads_allowed_exts")

	v.BindEnv("capture.fps", "capture_fps")
	v.BindEnv("capture.samples", "capture_samples")
	v.BindEnv("capture.timeout_seconds", "capture_timeout_seconds")

	v.BindEnv("trainer.command", "trainer_command")

	v.BindEnv("session.secret", "session_secret")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.root", ".")

	v.SetDefault("db.path", "models/users.db")

	v.SetDefault("uploads.allowed_exts", []string{".png", ".jpg", ".jpeg"})

	v.SetDefault("capture.fps", 30)
	v.SetDefault("capture.samples", 5)
	v.SetDefault("capture.timeout_seconds", 30)

	v.SetDefault("trainer.command", "train_faces")

	// A desktop install without a config file just runs on the defaults
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if *dbPath != "" {
		v.Set("db.path", *dbPath)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("capture.fps") <= 0 {
		return errors.New("capture.fps must be bigger than 0")
	}

	if v.GetInt("capture.samples") <= 0 {
		return errors.New("capture.samples must be bigger than 0")
	}

	if v.GetInt("capture.timeout_seconds") <= 0 {
		return errors.New("capture.timeout_seconds must be bigger than 0")
	}

	if v.GetString("trainer.command") == "" {
		return errors.New("no trainer command provided")
	}

	if len(v.GetStringSlice("uploads.allowed_exts")) == 0 {
		return errors.New("uploads.allowed_exts can't be empty")
	}

	if v.GetString("session.secret") == "" {
		secret, err := util.GenerateToken(32)
		if err != nil {
			return fmt.Errorf("failed to generate session secret, %w", err)
		}

		v.Set("session.secret", secret)
		zap.L().Warn("No session.secret set, remember-me tokens won't survive a restart")
	}

	return nil
}
