package internal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MatchState 比賽狀態機
//
//	waiting → playing → {paused ⇄ playing} → finished（終態）
type MatchState string

const (
	MatchWaiting  MatchState = "waiting"
	MatchPlaying  MatchState = "playing"
	MatchPaused   MatchState = "paused"
	MatchFinished MatchState = "finished"
)

// 比賽結束原因
const (
	ReasonWin          = "win"
	ReasonDisconnected = "opponent_disconnected"
	ReasonTimeout      = "timeout"
	ReasonShutdown     = "server_shutdown"
)

// MatchEvent 比賽結束事件，由 MatchCoordinator 消費以清理索引並上報結果。
// Winner 為空表示異常終止（如超時），無勝者。
type MatchEvent struct {
	GameID string
	Winner string
	Loser  string
	Score  Score
	Reason string
}

// Match 一場權威比賽。
//
// 併發模型：模擬狀態與輸入緩衝由 Match 的互斥鎖獨佔保護，
// 只有 Match 自己的方法會讀寫它們（單一寫者不變式）。
// tick 循環是一個獨立 goroutine 的固定頻率計時器，
// 比賽進入 finished 時明確停止，避免計時器洩漏。
type Match struct {
	ID      string
	Player1 *Player // 左側
	Player2 *Player // 右側

	mu            sync.Mutex
	state         MatchState
	sim           *Simulation
	tick          uint64
	inputs        map[string][]GameInput // playerID -> 待套用輸入（FIFO）
	lastActivity  time.Time
	lastBroadcast time.Time

	winScore          int
	maxInputBuffer    int
	tickInterval      time.Duration
	broadcastInterval time.Duration

	events   chan MatchEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewMatch 創建比賽，狀態為 waiting，不啟動 tick 循環
func NewMatch(id string, p1, p2 *Player, cfg *Config, logger *slog.Logger) *Match {
	return &Match{
		ID:      id,
		Player1: p1,
		Player2: p2,
		state:   MatchWaiting,
		sim:     NewSimulation(time.Now().UnixNano()),
		inputs: map[string][]GameInput{
			p1.ID: nil,
			p2.ID: nil,
		},
		lastActivity:      time.Now(),
		winScore:          cfg.Game.WinScore,
		maxInputBuffer:    cfg.Game.MaxInputBuffer,
		tickInterval:      cfg.TickInterval(),
		broadcastInterval: cfg.Game.BroadcastInterval,
		events:            make(chan MatchEvent, 1),
		stopCh:            make(chan struct{}),
		logger:            logger,
	}
}

// Start 開始比賽：隨機方向發球，廣播 match_start，啟動固定頻率 tick 循環
func (m *Match) Start() {
	m.mu.Lock()
	if m.state != MatchWaiting {
		m.mu.Unlock()
		return
	}
	m.state = MatchPlaying
	m.lastActivity = time.Now()
	m.sim.ServeRandom()
	state := m.sim.State
	m.mu.Unlock()

	m.broadcastBoth(newMatchStart(m.ID, state))

	m.wg.Add(1)
	go m.run()

	m.logger.Info("比賽開始",
		"game_id", m.ID,
		"p1", m.Player1.ID,
		"p2", m.Player2.ID)
}

// run 固定頻率 tick 循環
func (m *Match) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-m.stopCh:
			return
		}
	}
}

// Tick 推進一個 tick。tick 循環自動調用；公開供測試手動步進。
//
// 每 tick 按順序執行：輸入套用 → 物理（積分、反彈、擊拍、得分）→
// 勝利判定 → 節流狀態廣播。廣播節流以牆上時鐘計算，
// 加大廣播間隔不影響模擬本身。
func (m *Match) Tick() {
	m.mu.Lock()
	if m.state != MatchPlaying {
		m.mu.Unlock()
		return
	}
	m.lastActivity = time.Now()

	// 輸入套用：每玩家按到達順序，同一 tick 的多個輸入全部依序套用
	for _, p := range [2]*Player{m.Player1, m.Player2} {
		buffered := m.inputs[p.ID]
		for _, in := range buffered {
			m.sim.MovePaddle(p.Side, in.Action)
		}
		m.inputs[p.ID] = buffered[:0]
	}

	result := m.sim.Step()
	m.tick++

	var outbound [][]byte

	if result.Scorer != "" {
		scorer := m.playerOnSide(result.Scorer)
		outbound = append(outbound, newScore(scorer.ID, m.sim.State.Score))
	}

	// 先達到 winScore 者勝，比賽即刻終止
	if m.sim.State.Score.P1 >= m.winScore {
		outbound = append(outbound, m.finishLocked(m.Player1.ID, m.Player2.ID, ReasonWin))
	} else if m.sim.State.Score.P2 >= m.winScore {
		outbound = append(outbound, m.finishLocked(m.Player2.ID, m.Player1.ID, ReasonWin))
	} else if now := time.Now(); now.Sub(m.lastBroadcast) >= m.broadcastInterval {
		outbound = append(outbound, newGameState(m.sim.State, m.tick, now.UnixMilli()))
		m.lastBroadcast = now
	}
	m.mu.Unlock()

	for _, message := range outbound {
		m.broadcastBoth(message)
	}
}

// QueueInput 緩衝一次玩家輸入，下一個 tick 套用。
// 比賽不在 playing 狀態或玩家不屬於本場比賽時丟棄（返回 false）。
// 緩衝超限時丟棄最舊的輸入。
func (m *Match) QueueInput(playerID string, input GameInput) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MatchPlaying {
		return false
	}
	buffered, ok := m.inputs[playerID]
	if !ok {
		return false
	}

	if len(buffered) >= m.maxInputBuffer {
		buffered = buffered[1:]
	}
	m.inputs[playerID] = append(buffered, input)
	return true
}

// HandleDisconnect 玩家斷線：立即結束比賽，對手判勝。
// 留下的玩家先收到可區分的 opponent_disconnected，再收到 match_end。
func (m *Match) HandleDisconnect(playerID string) {
	m.mu.Lock()
	if m.state == MatchFinished {
		m.mu.Unlock()
		return
	}

	var leaver, remaining *Player
	switch playerID {
	case m.Player1.ID:
		leaver, remaining = m.Player1, m.Player2
	case m.Player2.ID:
		leaver, remaining = m.Player2, m.Player1
	default:
		m.mu.Unlock()
		return
	}

	end := m.finishLocked(remaining.ID, leaver.ID, ReasonDisconnected)
	m.mu.Unlock()

	remaining.Send(newOpponentDisconnected(fmt.Sprintf("%s disconnected", leaver.Name())))
	remaining.Send(end)
}

// ForceEnd 異常終止（閒置超時、服務器關閉）：finished 且無勝者
func (m *Match) ForceEnd(reason string) {
	m.mu.Lock()
	if m.state == MatchFinished {
		m.mu.Unlock()
		return
	}
	end := m.finishLocked("", "", reason)
	m.mu.Unlock()

	m.broadcastBoth(end)
}

// Pause 暫停比賽（僅 playing → paused）
func (m *Match) Pause() {
	m.mu.Lock()
	if m.state != MatchPlaying {
		m.mu.Unlock()
		return
	}
	m.state = MatchPaused
	m.mu.Unlock()

	m.broadcastBoth(newGamePaused())
}

// Resume 恢復比賽（僅 paused → playing）
func (m *Match) Resume() {
	m.mu.Lock()
	if m.state != MatchPaused {
		m.mu.Unlock()
		return
	}
	m.state = MatchPlaying
	m.lastActivity = time.Now()
	m.mu.Unlock()

	m.broadcastBoth(newGameResumed())
}

// finishLocked 進入終態：停止 tick 循環、發出結束事件，
// 返回 match_end 訊息交由調用者發送（需持有鎖）。
func (m *Match) finishLocked(winnerID, loserID, reason string) []byte {
	m.state = MatchFinished
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	event := MatchEvent{
		GameID: m.ID,
		Winner: winnerID,
		Loser:  loserID,
		Score:  m.sim.State.Score,
		Reason: reason,
	}
	select {
	case m.events <- event:
	default:
	}

	m.logger.Info("比賽結束",
		"game_id", m.ID,
		"winner", winnerID,
		"reason", reason,
		"score_p1", m.sim.State.Score.P1,
		"score_p2", m.sim.State.Score.P2)

	// 正常勝利不在訊息中帶 reason，異常終止（斷線、超時）才帶
	wireReason := reason
	if reason == ReasonWin {
		wireReason = ""
	}
	return newMatchEnd(winnerID, m.sim.State.Score, wireReason)
}

// Stop 停止 tick 循環並等待退出（服務器關閉用）
func (m *Match) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

// State 當前狀態
func (m *Match) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot 模擬狀態快照與當前 tick 計數
func (m *Match) Snapshot() (SimulationState, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sim.State, m.tick
}

// LastActivity 最後活動時間（閒置掃描用）
func (m *Match) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Events 結束事件通道
func (m *Match) Events() <-chan MatchEvent {
	return m.events
}

// PlaceBall 直接設置球的狀態（公開供測試構造特定局面）
func (m *Match) PlaceBall(ball Ball) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sim.State.Ball = ball
}

// playerOnSide 按球拍側取玩家
func (m *Match) playerOnSide(side Side) *Player {
	if m.Player1.Side == side {
		return m.Player1
	}
	return m.Player2
}

// broadcastBoth 向兩名玩家非阻塞發送
func (m *Match) broadcastBoth(message []byte) {
	m.Player1.Send(message)
	m.Player2.Send(message)
}
