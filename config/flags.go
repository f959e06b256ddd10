package config

import (
	"log"
	"os"

	"github.com/canonical/store-api-go/logger"
	"github.com/spf13/cobra"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// LogLevel resolves the --log-level flag, then STORE_API_LOG_LEVEL, then info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, ok := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LevelEnv, "info"))
	if !ok {
		return logger.LevelInfo
	}
	return level
}

// NewLogger returns a console logger at the level picked by LogLevel, or a
// JSON logger when --log-format is json.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	level := LogLevel(cmd)
	if format, _ := cmd.Flags().GetString("log-format"); format == "json" {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}
