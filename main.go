package main

import (
	"context"
	"embed"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/joho/godotenv/autoload"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/proxy"

	"enviofinder/bot"
	"enviofinder/config"
	"enviofinder/data"
	"enviofinder/data/repos"
	"enviofinder/rescan"
	"enviofinder/search"
	"enviofinder/vendorsite"
)

const defaultRegion = "gr"

//go:embed data/migrations/*.sql
var embedMigrations embed.FS

func main() {
	config.LoadConfig()

	opts := slog.HandlerOptions{Level: config.Config.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &opts)
	if config.Config.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	db, err := sqlx.Connect("postgres", config.Config.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := data.RunMigrations(db.DB, embedMigrations); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	storeRepo := repos.NewStoreRepo(db)
	productRepo := repos.NewProductRepo(db)
	eventRepo := repos.NewSearchEventRepo(db)
	subscriptionRepo := repos.NewSubscriptionRepo(db, config.Config.MaxActiveSubscriptions)
	settingsRepo := repos.NewSettingsRepo(db, defaultRegion, config.Config.DefaultCredit)

	vendorClient, err := httpClient(config.Config.ProxyURL, config.Config.FetchTimeout)
	if err != nil {
		slog.Error("failed to create http client", "error", err)
		os.Exit(1)
	}
	vendor := vendorsite.New(config.Config.VendorBaseURL, vendorClient, logger)

	cache := search.NewCache(vendor, eventRepo, productRepo, config.Config.CacheTTL, logger)
	orchestrator := search.NewOrchestrator(
		cache,
		storeRepo,
		eventRepo,
		settingsRepo,
		config.Config.FreeSearchesPerHour,
		config.Config.ShowEmptyStores,
		logger,
	)

	// Long-poll responses need a client timeout above the poll timeout.
	telegram := bot.NewTelegram(config.Config.BotToken, &http.Client{Timeout: 70 * time.Second}, logger)
	router := bot.NewRouter(
		telegram,
		telegram,
		orchestrator,
		subscriptionRepo,
		settingsRepo,
		storeRepo,
		productRepo,
		config.Config.DefaultScanInterval,
		config.Config.AdminChatID,
		logger,
	)

	scheduler := rescan.NewScheduler(
		cache,
		subscriptionRepo,
		settingsRepo,
		storeRepo,
		bot.NewAlertNotifier(telegram),
		config.Config.RescanInterval,
		config.Config.NotifyDeactivate,
		logger,
	)
	sweeper := rescan.NewSweeper(subscriptionRepo, config.Config.SubscriptionMaxAge, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go router.Run(ctx)
	go scheduler.Start(ctx)
	if err := sweeper.Start(config.Config.SweepSchedule); err != nil {
		slog.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
		sweeper.Stop()
		if err := db.Close(); err != nil {
			slog.Error("failed to close database connection", "error", err)
		}
		os.Exit(0)
	}()

	slog.Info("Starting server on port 8080")
	err = http.ListenAndServe(":8080", mux)
	if err != nil {
		slog.Error("failed to start server", "error", err)
	}
}

func httpClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}

	if proxyURL == "" {
		return client, nil
	}

	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme != "socks5" {
		return client, nil
	}

	// SOCKS5 proxy with authentication
	var auth *proxy.Auth
	if parsedURL.User != nil {
		password, _ := parsedURL.User.Password()
		auth = &proxy.Auth{
			User:     parsedURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}

	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	}
	slog.Info("using SOCKS5 proxy", "proxy", parsedURL.Host)

	return client, nil
}
