package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/echofind/cmd/corpus"
	"github.com/tphakala/echofind/cmd/export"
	"github.com/tphakala/echofind/cmd/serve"
	"github.com/tphakala/echofind/cmd/sessions"
	"github.com/tphakala/echofind/cmd/train"
	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "echofind",
		Short: "EchoFind acoustic search CLI",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		sessions.Command(settings),
		corpus.Command(settings),
		train.Command(settings),
		export.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().IntVar(&settings.Search.TopK, "top-k", settings.Search.TopK, "Maximum number of search results")
	rootCmd.PersistentFlags().Float64Var(&settings.Search.MinSimilarity, "min-similarity", settings.Search.MinSimilarity, "Similarity floor for search results, between 0.0 and 1.0")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
