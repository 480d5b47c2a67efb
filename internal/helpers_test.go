package internal_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/koopa0/pong-server/internal"
)

// fakeConn 測試用的傳輸句柄，記錄所有送出的訊息
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
}

func (c *fakeConn) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 複製一份，避免調用方重用底層緩衝
	buf := make([]byte, len(message))
	copy(buf, message)
	c.messages = append(c.messages, buf)
	return true
}

// typed 解碼所有指定類型的訊息
func (c *fakeConn) typed(msgType string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []map[string]any
	for _, raw := range c.messages {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			continue
		}
		if decoded["type"] == msgType {
			result = append(result, decoded)
		}
	}
	return result
}

// last 最後一條指定類型的訊息
func (c *fakeConn) last(msgType string) (map[string]any, bool) {
	msgs := c.typed(msgType)
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

// count 指定類型的訊息數量
func (c *fakeConn) count(msgType string) int {
	return len(c.typed(msgType))
}

// testLogger 測試用日誌（只輸出錯誤，避免噪音）
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testConfig 測試用配置：tick 放慢到 1 Hz，測試手動調用 Tick 步進
func testConfig() *internal.Config {
	cfg := internal.DefaultConfig()
	cfg.Game.TickRate = 1
	cfg.Game.MaxInputBuffer = 64
	cfg.Game.SweepInterval = time.Hour
	return cfg
}

// newTestPlayer 創建玩家與其假連接
func newTestPlayer(id, name string) (*internal.Player, *fakeConn) {
	conn := &fakeConn{}
	return internal.NewPlayer(id, name, conn), conn
}
