package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"treewalk/internal/config"
)

type rootOptions struct {
	configFile string
	envFile    string
	v          *viper.Viper
}

// RootCommand builds the treewalk command tree.
func RootCommand() *cobra.Command {
	opts := &rootOptions{v: config.New()}
	root := &cobra.Command{
		Use:           "treewalk",
		Short:         "TreeWalk virtual tree survey server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv(opts.envFile)
		},
	}
	if err := setupFlags(root, opts); err != nil {
		panic(err)
	}
	root.AddCommand(serveCommand(opts), versionCommand())
	return root
}

func setupFlags(root *cobra.Command, opts *rootOptions) error {
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to a config file (yaml, json or toml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("storage-driver", "fs", "Record slot driver: memory, fs, sqlite, postgres, mysql, s3")

	if err := opts.v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return fmt.Errorf("bind log-level: %w", err)
	}
	if err := opts.v.BindPFlag("storage.driver", flags.Lookup("storage-driver")); err != nil {
		return fmt.Errorf("bind storage-driver: %w", err)
	}
	return nil
}
