// Package main runs the UEM Food storefront.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/config"
	"uemfood.app/storefront/internal/storefront/guard"
	"uemfood.app/storefront/internal/storefront/httpserver"
	"uemfood.app/storefront/internal/storefront/metrics"
	"uemfood.app/storefront/internal/storefront/observability"
	"uemfood.app/storefront/internal/storefront/rbac"
	"uemfood.app/storefront/internal/storefront/session"
)

const (
	backendTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "storefront",
		Short:         "UEM Food storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), hashPassphraseCmd())
	return cmd
}

type serveFlags struct {
	configFile string
	envFile    string
	addr       string
	backendURL string
	logLevel   string
}

func serveCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with local overrides")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (overrides STOREFRONT_ADDR)")
	cmd.Flags().StringVar(&flags.backendURL, "backend-url", "", "food backend base URL (overrides STOREFRONT_BACKEND_URL)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	return cmd
}

func serve(ctx context.Context, flags serveFlags) error {
	overrides := map[string]string{}
	if flags.addr != "" {
		overrides["STOREFRONT_ADDR"] = flags.addr
	}
	if flags.backendURL != "" {
		overrides["STOREFRONT_BACKEND_URL"] = flags.backendURL
	}
	if flags.logLevel != "" {
		overrides["LOG_LEVEL"] = flags.logLevel
	}
	cfg, err := config.Load(ctx,
		config.WithConfigFile(flags.configFile),
		config.WithEnvFile(flags.envFile),
		config.WithEnvMap(overrides),
	)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	m := metrics.New()

	svc, err := backend.NewHTTPService(cfg.Backend.BaseURL, &http.Client{Timeout: backendTimeout},
		backend.WithObserver(m),
		backend.WithLogger(logger.Named("backend")),
	)
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}

	hashKey := cfg.Session.HashKey
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
		logger.Warn("STOREFRONT_SESSION_HASH_KEY not set; sessions will not survive a restart")
	}
	sessions, err := session.NewManager(session.Config{
		HashKey:      hashKey,
		BlockKey:     cfg.Session.BlockKey,
		CookieSecure: cfg.Session.CookieSecure,
		Logger:       logger.Named("session"),
	})
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}

	g := guard.New(guard.Options{
		TokenName: cfg.Session.TokenCookie,
		Roles:     rbac.NewResolver(cfg.Admin.Phones),
		Observer:  m,
	})

	srv, err := httpserver.New(httpserver.Config{
		Address:             cfg.Server.Address,
		Environment:         cfg.Server.Environment,
		Backend:             svc,
		Sessions:            sessions,
		Guard:               g,
		Metrics:             m,
		Logger:              logger,
		TokenName:           cfg.Session.TokenCookie,
		TokenTTL:            cfg.Session.TokenTTL,
		FlashCookieName:     cfg.Session.FlashCookie,
		CSRFCookieName:      cfg.Session.CSRFCookie,
		CSRFHeaderName:      cfg.Session.CSRFHeader,
		CookieSecure:        cfg.Session.CookieSecure,
		AdminPassphraseHash: cfg.Admin.PassphraseHash,
		MaxUploadBytes:      cfg.Upload.MaxBytes,
	})
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("storefront listening",
		zap.String("addr", cfg.Server.Address),
		zap.String("environment", cfg.Server.Environment),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Int("admin_phones", len(cfg.Admin.Phones)),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("storefront stopped")
	return nil
}

func hashPassphraseCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-passphrase [passphrase]",
		Short: "Print a bcrypt hash for STOREFRONT_ADMIN_PASSPHRASE_HASH",
		Long:  "Print a bcrypt hash for STOREFRONT_ADMIN_PASSPHRASE_HASH. Without an argument the passphrase is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var passphrase string
			if len(args) == 1 {
				passphrase = args[0]
			} else {
				read, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				passphrase = read
			}
			hash, err := hashPassphrase(passphrase, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func hashPassphrase(passphrase string, cost int) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), cost)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return string(hash), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
