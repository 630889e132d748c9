package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/s3mirror/internal/blob"
	"github.com/openmined/s3mirror/internal/sync"
	"github.com/openmined/s3mirror/internal/version"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var (
	cyan = color.New(color.FgHiCyan, color.Bold).SprintFunc()
	red  = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "s3mirror",
	Short:   "Mirror a local directory to an S3 bucket prefix",
	Long:    "s3mirror makes the objects under a bucket prefix match a local directory tree,\nuploading new or changed files and deleting orphaned objects. Unchanged content\nis never retransmitted.",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &sync.Config{
			RootDir:        viper.GetString("root"),
			Bucket:         viper.GetString("bucket"),
			Prefix:         viper.GetString("prefix"),
			MaxConcurrency: viper.GetInt("concurrency"),
			DryRun:         viper.GetBool("dry_run"),
			Excludes:       viper.GetStringSlice("exclude"),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// config is good, errors past this point are runtime failures
		cmd.SilenceUsage = true
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", cyan(version.AppName), version.Short())

		client, err := blob.NewS3ClientWithConfig(cmd.Context(), &blob.S3Config{
			BucketName: cfg.Bucket,
			Region:     viper.GetString("region"),
			AccessKey:  viper.GetString("access_key"),
			SecretKey:  viper.GetString("secret_key"),
			Endpoint:   viper.GetString("endpoint"),
		})
		if err != nil {
			return err
		}

		engine, err := sync.NewSyncEngine(cfg, client)
		if err != nil {
			return err
		}

		result, err := engine.Run(cmd.Context())
		if err != nil {
			if errors.Is(err, blob.ErrCredentials) {
				fmt.Fprintln(cmd.ErrOrStderr(), red("credentials error:"), "fix AWS credentials (env, shared config, or --access-key/--secret-key)")
			}
			return err
		}

		for _, f := range result.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", red("failed:"), f.Error())
		}

		// per-item failures exit zero by default so partial progress is
		// not masked as total failure
		if len(result.Failed) > 0 && viper.GetBool("fail_on_error") {
			return fmt.Errorf("%d transfers failed", len(result.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("root", "r", "", "Local directory to mirror (required)")
	rootCmd.Flags().StringP("bucket", "b", "", "Target S3 bucket (required)")
	rootCmd.Flags().StringP("prefix", "p", "", "Key prefix inside the bucket")
	rootCmd.Flags().BoolP("dry-run", "n", false, "Report intended actions without mutating the store")
	rootCmd.Flags().IntP("concurrency", "c", sync.DefaultMaxConcurrency, "Max concurrent uploads")
	rootCmd.Flags().StringArrayP("exclude", "x", nil, "Glob pattern to exclude (repeatable)")
	rootCmd.Flags().Bool("fail-on-error", false, "Exit non-zero when any individual transfer fails")
	rootCmd.Flags().String("region", "", "AWS region")
	rootCmd.Flags().String("endpoint", "", "Custom S3-compatible endpoint")
	rootCmd.Flags().String("access-key", "", "Static access key (defaults to ambient credentials)")
	rootCmd.Flags().String("secret-key", "", "Static secret key (defaults to ambient credentials)")
	rootCmd.Flags().BoolP("quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().String("config", "", "s3mirror config file")
	rootCmd.MarkFlagRequired("root")
	rootCmd.MarkFlagRequired("bucket")
}

func main() {
	// ambient AWS credentials can live in a project-local .env
	_ = godotenv.Load()

	// the logger must exist before cobra parses flags, so peek at the args
	setupLogger(quietRequested(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func quietRequested(args []string) bool {
	quiet := false
	for _, arg := range args {
		switch {
		case arg == "-q" || arg == "--quiet":
			quiet = true
		case strings.HasPrefix(arg, "--quiet="):
			if v, err := strconv.ParseBool(strings.TrimPrefix(arg, "--quiet=")); err == nil {
				quiet = v
			}
		}
	}
	return quiet
}

func setupLogger(quiet bool) {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

func bindConfig(cmd *cobra.Command) error {
	// config file path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".s3mirror"))
		viper.AddConfigPath(filepath.Join(home, ".config/s3mirror"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	// the config file is optional, only a malformed one is an error
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("root", cmd.Flags().Lookup("root"))
	viper.BindPFlag("bucket", cmd.Flags().Lookup("bucket"))
	viper.BindPFlag("prefix", cmd.Flags().Lookup("prefix"))
	viper.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("exclude", cmd.Flags().Lookup("exclude"))
	viper.BindPFlag("fail_on_error", cmd.Flags().Lookup("fail-on-error"))
	viper.BindPFlag("region", cmd.Flags().Lookup("region"))
	viper.BindPFlag("endpoint", cmd.Flags().Lookup("endpoint"))
	viper.BindPFlag("access_key", cmd.Flags().Lookup("access-key"))
	viper.BindPFlag("secret_key", cmd.Flags().Lookup("secret-key"))

	viper.SetEnvPrefix("S3MIRROR")
	viper.AutomaticEnv()

	return nil
}
