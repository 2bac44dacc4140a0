package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-engine/internal/client"
	"checkout-engine/internal/config"
	"checkout-engine/internal/logging"
	"checkout-engine/internal/metrics"
	"checkout-engine/internal/middleware"
	"checkout-engine/internal/notify"
	"checkout-engine/internal/pricing"
	"checkout-engine/internal/repository"
	"checkout-engine/internal/server"
	"checkout-engine/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "checkout-engine"

func main() {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "checkout and payment API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	rootCmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		seedCommand(),
		tokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := client.InitDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := client.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := openDatabase(cfg); err != nil {
				return err
			}
			fmt.Println("Migrated")
			return nil
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "insert demo products, coupons and payment options",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := repository.NewProductRepository(db).Seed(ctx); err != nil {
				return fmt.Errorf("seed products: %w", err)
			}
			if err := repository.NewCouponRepository(db).Seed(ctx); err != nil {
				return fmt.Errorf("seed coupons: %w", err)
			}
			if err := repository.NewPaymentOptionRepository(db).Seed(ctx); err != nil {
				return fmt.Errorf("seed payment options: %w", err)
			}
			fmt.Println("Seeded")
			return nil
		},
	}
}

func tokenCommand() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "sign a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := middleware.NewToken(cfg.Auth.JWTSecret, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role claim, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newSink(cfg *config.Config, logger *zap.Logger) (notify.Sink, func(), error) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}
	closeFn := func() {}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := notify.NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewKafkaSink(producer, cfg.Kafka.Topic))
		closeFn = func() {
			if err := producer.Close(); err != nil {
				logger.Warn("close kafka producer", zap.Error(err))
			}
		}
		logger.Info("publishing checkout events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	return notify.Fanout(sinks...), closeFn, nil
}

func newGateways(cfg *config.Config, logger *zap.Logger) client.Gateways {
	var clients []client.MobileMoneyClient
	if cfg.Mpesa.BaseApiURL != "" {
		clients = append(clients, client.NewMpesaClient(cfg.Mpesa))
	}
	if cfg.Airtel.BaseApiURL != "" {
		clients = append(clients, client.NewAirtelClient(cfg.Airtel))
	}
	gateways := client.NewGateways(clients...)
	for provider := range gateways {
		logger.Info("mobile money gateway enabled", zap.String("provider", provider))
	}
	return gateways
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(serviceName, cfg.Environment, cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	vatRate, err := pricing.ParseRate(cfg.Checkout.VATRate)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("open database", zap.Error(err))
		return err
	}

	sink, closeSink, err := newSink(cfg, logger)
	if err != nil {
		logger.Error("init kafka producer", zap.Error(err))
		return err
	}
	defer closeSink()

	m := metrics.New(prometheus.DefaultRegisterer)

	orderRepo := repository.NewOrderRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	optionRepo := repository.NewPaymentOptionRepository(db)
	callbackRepo := repository.NewProviderCallbackRepository(db)

	couponService := service.NewCouponService(db, couponRepo)
	orderService := service.NewOrderService(db, vatRate,
		repository.NewInventoryRepository(),
		orderRepo,
		couponService,
		sink, m,
	)
	paymentService := service.NewPaymentService(db,
		service.PaymentConfig{Currency: cfg.Checkout.Currency, AirtelSuccessCode: cfg.Airtel.SuccessStatusCode},
		newGateways(cfg, logger),
		orderRepo,
		paymentRepo,
		optionRepo,
		callbackRepo,
		sink, m,
	)

	srv := server.NewServer(server.Services{
		Order:   orderService,
		Coupon:  couponService,
		Payment: paymentService,
	}, server.Options{
		Logger:    logger,
		JWTSecret: cfg.Auth.JWTSecret,
	})

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	logger.Info("starting HTTP server", zap.String("addr", serverAddr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	select {
	case err := <-errCh:
		logger.Error("HTTP server error", zap.Error(err))
		return err
	case <-sigCtx.Done():
	}
	logger.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	return nil
}
