package internal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MatchResult 上報給外部協作方（戰績／錦標賽服務）的比賽結果
type MatchResult struct {
	GameID     string    `json:"gameId"`
	Winner     string    `json:"winner"`
	Loser      string    `json:"loser"`
	Score      Score     `json:"score"`
	Reason     string    `json:"reason"`
	FinishedAt time.Time `json:"finishedAt"`
}

// ResultReporter 比賽結果的出站邊界。
// 核心不直接調用戰績／錦標賽服務，只透過此介面發布事件。
type ResultReporter interface {
	Publish(result MatchResult)
}

// MatchCoordinator 比賽協調器。
//
// 獨佔擁有 Match 的生命週期與玩家→比賽索引。
// 索引是單射的：一名玩家同時最多屬於一場比賽，
// 違反時 CreateMatch 直接失敗（代表前一場比賽洩漏，是程式錯誤）。
type MatchCoordinator struct {
	mu          sync.RWMutex
	matches     map[string]*Match // gameID -> Match
	playerMatch map[string]string // playerID -> gameID
	counter     int               // 單調遞增的比賽序號

	cfg      *Config
	reporter ResultReporter
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMatchCoordinator 創建協調器並啟動閒置比賽掃描。
// reporter 可為 nil（停用結果上報）。
func NewMatchCoordinator(cfg *Config, reporter ResultReporter, logger *slog.Logger) *MatchCoordinator {
	c := &MatchCoordinator{
		matches:     make(map[string]*Match),
		playerMatch: make(map[string]string),
		cfg:         cfg,
		reporter:    reporter,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c
}

// CreateMatch 創建比賽：分配順序 ID、指定左右側、寫入玩家索引，
// 並訂閱比賽結束事件以清理索引。
func (c *MatchCoordinator) CreateMatch(p1, p2 *Player) (*Match, error) {
	c.mu.Lock()

	if gameID, exists := c.playerMatch[p1.ID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("玩家 %s 已在比賽 %s 中", p1.ID, gameID)
	}
	if gameID, exists := c.playerMatch[p2.ID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("玩家 %s 已在比賽 %s 中", p2.ID, gameID)
	}

	c.counter++
	gameID := fmt.Sprintf("game_%d_%d", c.counter, time.Now().UnixMilli())

	p1.Side = SideLeft
	p2.Side = SideRight
	match := NewMatch(gameID, p1, p2, c.cfg, c.logger)

	c.matches[gameID] = match
	c.playerMatch[p1.ID] = gameID
	c.playerMatch[p2.ID] = gameID
	c.mu.Unlock()

	c.wg.Add(1)
	go c.watchMatch(match)

	c.logger.Info("比賽已創建",
		"game_id", gameID,
		"p1", p1.ID,
		"p2", p2.ID)
	return match, nil
}

// StartMatch 完整的升級流程：創建比賽、向雙方發送 game_starting
// （同一 gameId、相反的 playerSide）、開始模擬。
// 房間升級與快速配對都走這條路徑。
func (c *MatchCoordinator) StartMatch(p1, p2 *Player) (*Match, error) {
	match, err := c.CreateMatch(p1, p2)
	if err != nil {
		return nil, err
	}

	p1.Send(newGameStarting(match.ID, SideLeft, p2.Name()))
	p2.Send(newGameStarting(match.ID, SideRight, p1.Name()))

	match.Start()
	return match, nil
}

// GetMatchByPlayer 玩家當前所在的比賽，無則返回 nil。
// 其他組件路由輸入的唯一讀取路徑。
func (c *MatchCoordinator) GetMatchByPlayer(playerID string) *Match {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gameID, exists := c.playerMatch[playerID]
	if !exists {
		return nil
	}
	return c.matches[gameID]
}

// HandleDisconnect 玩家斷線：結束其所在的比賽（如有）
func (c *MatchCoordinator) HandleDisconnect(playerID string) bool {
	match := c.GetMatchByPlayer(playerID)
	if match == nil {
		return false
	}
	match.HandleDisconnect(playerID)
	return true
}

// watchMatch 等待比賽結束事件，清理索引並上報結果
func (c *MatchCoordinator) watchMatch(match *Match) {
	defer c.wg.Done()

	select {
	case event := <-match.Events():
		c.cleanup(match, event)
	case <-c.stopCh:
	}
}

// cleanup 移除比賽與兩筆玩家索引
func (c *MatchCoordinator) cleanup(match *Match, event MatchEvent) {
	c.mu.Lock()
	if c.playerMatch[match.Player1.ID] == match.ID {
		delete(c.playerMatch, match.Player1.ID)
	}
	if c.playerMatch[match.Player2.ID] == match.ID {
		delete(c.playerMatch, match.Player2.ID)
	}
	delete(c.matches, match.ID)
	c.mu.Unlock()

	c.logger.Info("比賽已清理",
		"game_id", match.ID,
		"reason", event.Reason)

	if c.reporter != nil {
		c.reporter.Publish(MatchResult{
			GameID:     event.GameID,
			Winner:     event.Winner,
			Loser:      event.Loser,
			Score:      event.Score,
			Reason:     event.Reason,
			FinishedAt: time.Now(),
		})
	}
}

// sweepLoop 定期掃描閒置比賽
func (c *MatchCoordinator) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Game.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Sweep 結束所有閒置超時的比賽（公開供測試直接觸發）。
// 超時是異常終止：finished 且無勝者，原因為 timeout。
func (c *MatchCoordinator) Sweep() {
	c.mu.RLock()
	var stale []*Match
	for _, match := range c.matches {
		if time.Since(match.LastActivity()) > c.cfg.Game.MatchTimeout {
			stale = append(stale, match)
		}
	}
	c.mu.RUnlock()

	for _, match := range stale {
		c.logger.Warn("比賽閒置超時，異常終止", "game_id", match.ID)
		match.ForceEnd(ReasonTimeout)
	}
}

// Stats 統計：歷史比賽總數與進行中比賽數
func (c *MatchCoordinator) Stats() (totalGames, activeGames int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter, len(c.matches)
}

// Stop 停止協調器：終止所有比賽並等待後台 goroutine 退出
func (c *MatchCoordinator) Stop() {
	c.mu.RLock()
	remaining := make([]*Match, 0, len(c.matches))
	for _, match := range c.matches {
		remaining = append(remaining, match)
	}
	c.mu.RUnlock()

	for _, match := range remaining {
		match.ForceEnd(ReasonShutdown)
		match.Stop()
	}

	close(c.stopCh)
	c.wg.Wait()

	c.logger.Info("比賽協調器已停止")
}
