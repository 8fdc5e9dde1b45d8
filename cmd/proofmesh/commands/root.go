// Package commands provides the CLI commands for ProofMesh.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/config"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	logFile   bool
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "proofmesh",
	Short: "ProofMesh - streaming AI edits for LaTeX workspaces",
	Long: `ProofMesh applies edits streamed by a reasoning service to the documents
of a workspace and tracks every change for review.

Run 'proofmesh serve' to start the HTTP API, or 'proofmesh apply' to run a
single instruction against one file.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Also write JSON logs to the state directory")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "d", "", "Workspace directory")

	rootCmd.SetVersionTemplate(fmt.Sprintf("proofmesh %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
}

// Execute runs the root command. The log file, if any, is closed on return.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// loadConfig resolves the workspace, loads its configuration and sets up
// logging from the flags and the config. quiet keeps stderr to errors
// unless logs were asked for.
func loadConfig(quiet bool) (*types.Config, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	appConfig, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	level := logLevel
	if level == "" {
		level = appConfig.LogLevel
	}
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(level)
	cfg.Pretty = printLogs
	cfg.LogToFile = logFile
	cfg.LogDir = paths.LogPath()
	if logFile {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, err
		}
	}
	if quiet && !printLogs && !logFile {
		cfg.Level = logging.ErrorLevel
	}
	logging.Init(cfg)

	return appConfig, nil
}
