package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nemonet1337/makibaGoStock/internal/config"
	"github.com/nemonet1337/makibaGoStock/pkg/inventory"
	"github.com/nemonet1337/makibaGoStock/pkg/inventory/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// ロガー初期化
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ロガー初期化に失敗しました: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("makibaGoStock APIサーバーを起動します",
		zap.Int("port", cfg.API.Port))

	// ストレージ初期化
	store, err := storage.NewPostgresStore(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("ストレージ初期化に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// コアエンジンの組み立て
	clock := inventory.SystemClock{}
	notifier := inventory.NewLogNotificationSink(logger)

	alertEngine := inventory.NewAlertEngine(store, notifier, clock, logger, inventory.AlertConfig{
		ExpiryWarningDays:  cfg.Inventory.ExpiryWarningDays,
		ExpiryCriticalDays: cfg.Inventory.ExpiryCriticalDays,
		SweepPageSize:      cfg.Inventory.SweepPageSize,
	})

	reorderEngine := inventory.NewReorderEngine(store, notifier, clock, logger, inventory.ReorderConfig{
		Enabled: cfg.Inventory.AutoReorderEnabled,
	})

	ledger := inventory.NewLedger(store, alertEngine, reorderEngine, clock, logger, inventory.LedgerConfig{
		DefaultCurrency:    cfg.Inventory.DefaultCurrency,
		MaxConflictRetries: cfg.Inventory.MaxConflictRetries,
	})

	valuationEngine := inventory.NewValuationEngine(store, logger)
	analysisEngine := inventory.NewAnalysisEngine(store, valuationEngine, logger)

	// 定期アラートスイープ
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Inventory.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := alertEngine.Sweep(ctx); err != nil {
			logger.Error("定期アラートスイープに失敗しました", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("スイープスケジュールの登録に失敗しました",
			zap.String("schedule", cfg.Inventory.SweepSchedule),
			zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("定期アラートスイープを登録しました",
		zap.String("schedule", cfg.Inventory.SweepSchedule))

	// ハンドラーとルーター
	handler := NewHandler(ledger, alertEngine, reorderEngine, valuationEngine, analysisEngine, store, logger)
	router := setupRouter(handler, cfg, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// サーバー起動
	go func() {
		logger.Info("HTTPサーバーを起動しました", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTPサーバーが異常終了しました", zap.Error(err))
		}
	}()

	// シグナル待機とグレースフルシャットダウン
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("シャットダウンを開始します")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("グレースフルシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーを停止しました")
}

// newLogger builds a zap logger from logging configuration
// ログ設定からzapロガーを構築
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル %s: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// setupRouter wires all HTTP routes
// 全HTTPルートを登録
func setupRouter(h *Handler, cfg *config.Config, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	if cfg.API.EnableCORS {
		router.Use(corsMiddleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// 品目
	api.HandleFunc("/items", h.CreateItem).Methods("POST")
	api.HandleFunc("/items", h.ListItems).Methods("GET")
	api.HandleFunc("/items/{id}", h.GetItem).Methods("GET")
	api.HandleFunc("/items/code/{code}", h.GetItemByCode).Methods("GET")
	api.HandleFunc("/items/{id}/history", h.GetHistory).Methods("GET")

	// 在庫移動・予約
	api.HandleFunc("/inventory/movements", h.ApplyMovement).Methods("POST")
	api.HandleFunc("/inventory/reserve", h.Reserve).Methods("POST")
	api.HandleFunc("/inventory/release", h.Release).Methods("POST")

	// アラート
	api.HandleFunc("/alerts", h.ListActiveAlerts).Methods("GET")
	api.HandleFunc("/alerts/sweep", h.SweepAlerts).Methods("POST")
	api.HandleFunc("/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")

	// 発注
	api.HandleFunc("/purchase-orders", h.ListPurchaseOrders).Methods("GET")

	// 評価・分析
	api.HandleFunc("/valuation/items/{id}", h.GetItemValuation).Methods("GET")
	api.HandleFunc("/valuation/total", h.GetTotalValuation).Methods("GET")
	api.HandleFunc("/analytics/abc", h.GetABCClassification).Methods("GET")
	api.HandleFunc("/analytics/items/{id}/turnover", h.GetTurnoverRate).Methods("GET")
	api.HandleFunc("/analytics/items/{id}/expiration-loss", h.GetExpirationLoss).Methods("GET")
	api.HandleFunc("/analytics/items/{id}/cost-variance", h.GetCostVariance).Methods("GET")

	// ヘルスチェック・メトリクス
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	if cfg.API.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	return router
}

// loggingMiddleware logs each request
// リクエストごとのログを記録
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// corsMiddleware CORSヘッダーを付与
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
