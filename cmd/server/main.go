package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/koopa0/pong-server/internal"
)

func main() {
	// .env 檔案存在時載入（本地開發用，生產環境直接設環境變數）
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "配置檔案路徑（留空使用預設值）")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	// 比賽結果上報（NATS 未配置時停用）
	var reporter internal.ResultReporter
	var natsReporter *internal.NATSReporter
	if cfg.NATS.URL != "" {
		natsReporter, err = internal.NewNATSReporter(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Error("連接 NATS 失敗，結果上報停用", "error", err)
		} else {
			reporter = natsReporter
		}
	}

	// 組件裝配：註冊表 → 協調器 → 閘道
	players := internal.NewPlayerRegistry(logger)
	coordinator := internal.NewMatchCoordinator(cfg, reporter, logger)
	lobbies := internal.NewLobbyRegistry(func(p1, p2 *internal.Player) {
		if _, err := coordinator.StartMatch(p1, p2); err != nil {
			logger.Error("房間升級為比賽失敗", "error", err)
		}
	}, logger)
	gateway := internal.NewGateway(players, lobbies, coordinator, logger)
	handler := internal.NewHandler(players, lobbies, coordinator, logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("/ws", gateway.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器；端口綁定失敗是致命錯誤
	go func() {
		logger.Info("Pong 遊戲服務器啟動",
			"port", cfg.Server.Port,
			"tick_rate", cfg.Game.TickRate,
			"win_score", cfg.Game.WinScore)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 關閉順序：閘道（斷開客戶端）→ 協調器（終止比賽）→ 上報
	gateway.Stop()
	coordinator.Stop()
	if natsReporter != nil {
		natsReporter.Close()
	}

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug, // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
