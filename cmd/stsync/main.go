package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/imazen/repositext-sub003/internal/config"
	"github.com/imazen/repositext-sub003/internal/utils"
	"github.com/imazen/repositext-sub003/internal/version"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// cli is the state shared by every command of one invocation.
type cli struct {
	v       *viper.Viper
	cfg     *config.Config
	logSink io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "stsync",
		Short:         "Propagate subtitle structure changes from the primary repository to foreign repositories",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["config"] == "none" {
				return nil
			}
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.close()
		},
	}

	root.PersistentFlags().SortFlags = false
	root.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "stsync config file")
	root.PersistentFlags().Int("workers", 0, "foreign files synced concurrently (default: number of CPUs)")
	root.PersistentFlags().Bool("verbose", false, "log debug messages to the console")

	root.AddCommand(
		newSyncCmd(c),
		newLogsCmd(c),
		newIDsCmd(c),
		newReviewCmd(c),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command) error {
	if err := c.loadConfig(cmd); err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	sink, err := setupLogging(c.cfg.LogFile, verbose, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.logSink = sink
	slog.Debug("config loaded", "path", c.cfg.Path, "primary", c.cfg.Primary.Name, "foreign", len(c.cfg.Foreign))
	return nil
}

func (c *cli) close() {
	if c.logSink != nil {
		c.logSink.Close()
		c.logSink = nil
	}
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	v := c.v

	// config path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(config.DefaultStateDir)
		v.AddConfigPath(filepath.Join(home, ".config", "stsync"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	if f := cmd.Flags().Lookup("workers"); f != nil && f.Changed {
		v.BindPFlag("workers", f)
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", v.ConfigFileUsed(), err)
	}
	c.cfg = cfg
	return nil
}

// logSink flushes the interceptor before closing the log file.
type logSink struct {
	interceptor *utils.LogInterceptor
	file        *os.File
}

func (s *logSink) Close() error {
	return errors.Join(s.interceptor.Close(), s.file.Close())
}

// setupLogging logs to console at info (debug when verbose) and to path at debug.
func setupLogging(path string, verbose bool, console io.Writer) (io.Closer, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isTerminal(console),
	})

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps every line with its own time
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))
	return &logSink{interceptor: interceptor, file: file}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
