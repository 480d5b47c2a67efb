package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Handler 診斷用 HTTP 處理器。
// 只提供健康檢查與統計端點；遊戲協議全部走 WebSocket。
type Handler struct {
	players     *PlayerRegistry
	lobbies     *LobbyRegistry
	coordinator *MatchCoordinator
	logger      *slog.Logger
}

// NewHandler 創建診斷處理器
func NewHandler(players *PlayerRegistry, lobbies *LobbyRegistry, coordinator *MatchCoordinator, logger *slog.Logger) *Handler {
	return &Handler{
		players:     players,
		lobbies:     lobbies,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /games/stats", wrap(h.stats))

	return mux
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 遊戲統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	totalGames, activeGames := h.coordinator.Stats()

	h.jsonResponse(w, map[string]any{
		"totalGames":    totalGames,
		"activeGames":   activeGames,
		"totalPlayers":  h.players.TotalConnected(),
		"onlinePlayers": h.players.OnlineCount(),
		"openLobbies":   h.lobbies.Count(),
		"queueSize":     h.players.QueueSize(),
	}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
