package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/mixelka/gmailarchiver/internal/archive"
	"github.com/mixelka/gmailarchiver/internal/auth"
	"github.com/mixelka/gmailarchiver/internal/config"
	"github.com/mixelka/gmailarchiver/internal/index"
	"github.com/mixelka/gmailarchiver/internal/mailbox"
	"github.com/mixelka/gmailarchiver/internal/tokenstore"
)

type options struct {
	configPath   string
	authOnly     bool
	debug        bool
	forceRefresh bool
	noDelete     bool
	logFormat    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "gmail-archiver EMAIL [OUT_DIR]",
		Short:         "Archive old Gmail messages to disk and move them to the trash",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to the config file")
	cmd.Flags().BoolVarP(&opts.authOnly, "auth-only", "a", false, "only authorise the user, skip archival")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug level logging")
	cmd.Flags().BoolVarP(&opts.forceRefresh, "force-refresh", "r", false, "refresh the token even if it has not expired")
	cmd.Flags().BoolVar(&opts.noDelete, "no-delete", false, "do not move archived messages to the trash")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", `log output format ("text" or "json")`)
	return cmd
}

func run(ctx context.Context, args []string, opts *options) error {
	account := args[0]
	outDir := "./" + account
	if len(args) == 2 {
		outDir = args[1]
	}

	cfgPath := opts.configPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			slog.Error("failed to locate config", "error", err)
			return err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	logger := setupLogger(opts.debug, cfg.LogFormat)

	storePath, err := tokenstore.DefaultPath()
	if err != nil {
		logger.Error("failed to locate token store", "error", err)
		return err
	}
	client := auth.NewClient(cfg.ClientID, cfg.ClientSecret)
	client.Timeout = cfg.HTTPTimeout
	flow := &auth.Flow{
		Client:    client,
		Store:     tokenstore.Load(storePath),
		StorePath: storePath,
		Prompt:    promptForCode,
		Log:       logger,
	}
	rec, err := flow.Ensure(ctx, account, opts.forceRefresh)
	if err != nil {
		logger.Error("authorization failed", "account", account, "error", err)
		return err
	}
	logger.Info("logged in", "account", account)
	if opts.authOnly {
		return nil
	}

	sess, err := mailbox.Dial(mailbox.Config{
		Server:      cfg.IMAPServer,
		DialTimeout: cfg.IMAPDialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect", "server", cfg.IMAPServer, "error", err)
		return err
	}
	defer func() {
		// Best-effort teardown; a failure here must not mask an
		// already-successful archival.
		logger.Debug("closing")
		if err := sess.Close(); err != nil {
			logger.Error("failed to close mailbox", "error", err)
		}
		logger.Debug("logging out")
		if err := sess.Logout(); err != nil {
			logger.Error("failed to log out", "error", err)
		}
	}()

	var recorder archive.Recorder
	idx, err := index.Open(filepath.Join(outDir, "archive-index.db"))
	if err != nil {
		logger.Warn("archive index unavailable", "error", err)
	} else {
		defer idx.Close()
		if err := idx.Migrate(ctx); err != nil {
			logger.Warn("archive index unavailable", "error", err)
		} else {
			recorder = idx
		}
	}

	archiver := &archive.Archiver{
		Session:     sess,
		Log:         logger,
		Recorder:    recorder,
		Account:     account,
		AccessToken: rec.AccessToken,
		Root:        outDir,
		Delete:      !opts.noDelete,
	}
	res, err := archiver.Run(ctx)
	if err != nil {
		logger.Error("archival failed", "processed", res.Processed, "error", err)
		return err
	}
	logger.Info("archival complete", "processed", res.Processed)
	return nil
}

func promptForCode(consentURL string) (string, error) {
	fmt.Printf("Go to this URL: %s\n\n", consentURL)
	fmt.Print("Enter verification code: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func setupLogger(debug bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}
