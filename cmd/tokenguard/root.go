package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/tokenguard/internal/config"
	"github.com/kailas-cloud/tokenguard/internal/version"
)

var (
	// Global flags
	envName string
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tokenguard",
	Short: "Token metering, budget governance and quota enforcement",
	Long: `tokenguard sits in front of a paid per-token chat API. It prices every
completion, keeps the global spend under a ceiling, enforces per-principal
daily and monthly token quotas and hands out short-lived anonymous tokens.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "environment name, selects config/<env>.yaml (default $ENV or local)")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "explicit config file path (overrides --env)")
}

// loadConfig resolves the environment and config path from flags.
func loadConfig() (config.Config, string, string, error) {
	env := envName
	if env == "" {
		env = config.GetEnv()
	}
	path := cfgFile
	if path == "" {
		path = config.Path(env)
	}
	config.LoadDotEnv()
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, "", "", err
	}
	return cfg, env, path, nil
}
