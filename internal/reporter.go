package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSReporter 把比賽結果發布到 NATS 主題，
// 下游的戰績／錦標賽服務各自訂閱消費。
// 核心與協作方之間只有這條單向事件流，沒有同步調用。
type NATSReporter struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSReporter 連接 NATS。連不上時返回錯誤，由調用方決定是否降級停用。
func NewNATSReporter(url, subject string, logger *slog.Logger) (*NATSReporter, error) {
	conn, err := nats.Connect(url,
		nats.Name("pong-server"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	logger.Info("NATS 結果上報已啟用", "url", url, "subject", subject)
	return &NATSReporter{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Publish 發布一筆比賽結果。
// 發布失敗只記錄日誌：結果上報是盡力而為，不阻塞比賽清理。
func (r *NATSReporter) Publish(result MatchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("序列化比賽結果失敗", "error", err, "game_id", result.GameID)
		return
	}

	if err := r.conn.Publish(r.subject, data); err != nil {
		r.logger.Error("發布比賽結果失敗", "error", err, "game_id", result.GameID)
		return
	}

	r.logger.Info("比賽結果已上報",
		"game_id", result.GameID,
		"winner", result.Winner,
		"reason", result.Reason)
}

// Close 關閉 NATS 連接（先排空待發送的訊息）
func (r *NATSReporter) Close() {
	if err := r.conn.Drain(); err != nil {
		r.logger.Error("排空 NATS 連接失敗", "error", err)
	}
}
