package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	webAdapter "jewelstore/internal/adapters/web"
	"jewelstore/internal/config"
	"jewelstore/internal/core"
	"jewelstore/internal/db"
	"jewelstore/internal/notify"
	"jewelstore/internal/outbox"
)

var configPath string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "jewelstore",
		Short: "Jewelry store commerce backend",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to TOML config file")

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database URL is not configured (set DATABASE_URL or [database] url)")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	ledger := core.NewLedgerService(pool)
	products := core.NewProductService(pool, ledger)
	reservations := core.NewReservationService(pool, cfg.ReservationTTL())
	coupons := core.NewCouponService(pool)
	outboxStore := outbox.NewStore(pool, cfg.Outbox.MaxAttempts)
	orders := core.NewOrderService(pool, ledger, coupons, outboxStore, core.Pricing{
		TaxRatePercent:   cfg.TaxRate(),
		FreeShippingOver: cfg.FreeShippingThreshold(),
		ShippingFee:      cfg.ShippingFee(),
	})
	carts := core.NewCartService(pool)

	var sender notify.Sender
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		log.Warn("SMTP not configured, notifications will be logged only")
		sender = &notify.LogSender{Log: log}
	}
	relay := outbox.NewRelay(log, outboxStore, sender, cfg.OutboxRelayInterval(), cfg.Outbox.BatchSize)
	sweeper := core.NewCartReminderSweeper(log, pool, outboxStore,
		cfg.CartReminderAfter(), cfg.Cart.MaxReminders, cfg.CartSweepInterval())

	go relay.Run(ctx)
	go reservations.RunReaper(ctx, cfg.ReaperInterval(), log)
	go sweeper.Run(ctx)

	handler := webAdapter.NewHandler(log, webAdapter.Services{
		Products:     products,
		Reservations: reservations,
		Orders:       orders,
		Ledger:       ledger,
		Coupons:      coupons,
		Carts:        carts,
	}, cfg.Server.AllowedOrigins, cfg.Server.JWTSecret, cfg.Server.BodyLimitBytes)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory containing .sql migration files")
	return cmd
}

func runMigrate(ctx context.Context, dir string) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database URL is not configured (set DATABASE_URL or [database] url)")
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		log.Info("migration applied", "file", filepath.Base(file))
	}
	return nil
}
