package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/sightline"
	"github.com/jward/sightline/internal/config"
	"github.com/jward/sightline/internal/logging"
	"github.com/jward/sightline/internal/metrics"
	"github.com/jward/sightline/scripts"
)

var (
	flagDB          string
	flagFormat      string
	flagConfig      string
	flagScriptsDir  string
	flagLogLevel    string
	flagMetricsFile string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sightline",
	Short:         "Spatial map analysis over a persistent map store",
	Long:          "Sightline imports spatial data frames into keyed maps, runs Risor analysis scripts over them and keeps the results in a SQLite database.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: from config, relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: "+config.DefaultFile+" in repo root)")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(mapsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(scriptsCmd)
	rootCmd.AddCommand(runCmd)
}

// session bundles what every command needs: the loaded config, the engine
// built from it and the metrics registry to flush on close.
type session struct {
	cfg    config.Config
	engine *sightline.Engine
	log    *zap.Logger
	reg    *prometheus.Registry
}

func openSession() (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	repoRoot := findRepoRoot(cwd)

	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = filepath.Join(repoRoot, config.DefaultFile)
	}
	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	dbPath := resolveDBPath(repoRoot, flagDB, cfg)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	reg := prometheus.NewRegistry()
	opts := []sightline.Option{
		sightline.WithLogger(log),
		sightline.WithMetrics(metrics.New(reg)),
		sightline.WithCopyBeforeRun(cfg.CopyByDefault()),
		sightline.WithKeyColumn(cfg.KeyColumn),
	}
	if cfg.Tolerance > 0 {
		opts = append(opts, sightline.WithTolerance(cfg.Tolerance))
	}

	// Script source: --scripts-dir, then an existing configured directory,
	// then the embedded scripts.
	scriptsDir := flagScriptsDir
	if scriptsDir == "" && cfg.ScriptsDir != "" {
		dir := cfg.ScriptsDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(repoRoot, dir)
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			scriptsDir = dir
		}
	}
	if scriptsDir == "" {
		opts = append(opts, sightline.WithScriptsFS(scripts.FS))
	}

	engine, err := sightline.New(dbPath, scriptsDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	log.Debug("session opened", zap.String("db", dbPath), zap.String("scripts", scriptsDir))
	return &session{cfg: cfg, engine: engine, log: log, reg: reg}, nil
}

func (s *session) Close() error {
	err := s.engine.Close()
	if flagMetricsFile != "" {
		if werr := prometheus.WriteToTextfile(flagMetricsFile, s.reg); werr != nil && err == nil {
			err = fmt.Errorf("writing metrics: %w", werr)
		}
	}
	_ = s.log.Sync()
	return err
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns override when set, else the configured database.
// Relative paths are taken from repoRoot.
func resolveDBPath(repoRoot, override string, cfg config.Config) string {
	path := cfg.Database
	if override != "" {
		path = override
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoRoot, path)
}
