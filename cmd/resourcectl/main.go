package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configFile string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "resourcectl",
		Short: "Resource store CLI",
		Long: `Command line access to a resource store.

The backend is selected the same way as for resource-server: environment
variables (STORAGE_BACKEND, S3_BUCKET, FS_BASE_DIR, ...) optionally layered
on top of a config file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewPutCommand())
	rootCmd.AddCommand(NewMkdirCommand())
	rootCmd.AddCommand(NewRemoveCommand())
	rootCmd.AddCommand(NewRemoveDirCommand())
	rootCmd.AddCommand(NewCopyCommand())
	rootCmd.AddCommand(NewSummaryCommand())
	rootCmd.AddCommand(NewLinkCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewEnvCommand())

	return rootCmd
}

// storeFromFlags loads the configuration selected by the global flags and
// builds the store it describes.
func storeFromFlags(cmd *cobra.Command) (*resourcestore.Store, error) {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	opt := config.WithEnv()
	if configFile != "" {
		opt = config.WithFile(configFile)
	}
	cfg, err := config.Load(opt)
	if err != nil {
		return nil, err
	}

	if !verbose {
		cfg.Log.Level = "error"
	}
	logger := cfg.Log.Logger(cmd.ErrOrStderr())

	store, err := cfg.BuildStore(cmd.Context(), logger, nil)
	if err != nil {
		return nil, err
	}
	if verbose {
		logger.Info("Using resource store", "store", store.String())
	}
	return store, nil
}
