package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/pong-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHandler 創建帶完整依賴的診斷處理器
func newTestHandler(t *testing.T) (*internal.Handler, *internal.PlayerRegistry, *internal.MatchCoordinator) {
	t.Helper()

	logger := testLogger()
	players := internal.NewPlayerRegistry(logger)
	coordinator := internal.NewMatchCoordinator(testConfig(), nil, logger)
	lobbies := internal.NewLobbyRegistry(func(p1, p2 *internal.Player) {}, logger)

	t.Cleanup(coordinator.Stop)
	return internal.NewHandler(players, lobbies, coordinator, logger), players, coordinator
}

// TestHandler_Health 測試健康檢查端點
func TestHandler_Health(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotZero(t, body["time"])
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	handler, players, coordinator := newTestHandler(t)

	players.Register("p1", "Alice", &fakeConn{})
	players.Register("p2", "Bob", &fakeConn{})
	players.Enqueue("p1")

	p3, _ := newTestPlayer("p3", "Carol")
	p4, _ := newTestPlayer("p4", "Dave")
	_, err := coordinator.StartMatch(p3, p4)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/games/stats", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(1), body["totalGames"])
	assert.Equal(t, float64(1), body["activeGames"])
	assert.Equal(t, float64(2), body["totalPlayers"])
	assert.Equal(t, float64(2), body["onlinePlayers"])
	assert.Equal(t, float64(0), body["openLobbies"])
	assert.Equal(t, float64(1), body["queueSize"])
}

// TestHandler_MethodNotAllowed 非 GET 請求被拒絕
func TestHandler_MethodNotAllowed(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
