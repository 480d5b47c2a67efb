package internal

import (
	"log/slog"
	"sync"
)

// Sender 玩家的傳輸句柄。
// Send 必須是非阻塞的：緩衝滿時丟棄訊息並返回 false，
// 慢客戶端不能拖慢模擬 tick。
type Sender interface {
	Send(message []byte) bool
}

// Player 已連接的玩家。
// Side 在配對成功後由 MatchCoordinator 設置（啟動比賽 goroutine 之前，
// 之後只讀）。名稱與傳輸句柄可能在比賽進行中被重新綁定
// （同一玩家開啟第二條連接），由 Player 自己的鎖保護。
type Player struct {
	ID   string
	Side Side

	mu   sync.Mutex
	name string
	conn Sender
}

// NewPlayer 創建玩家
func NewPlayer(id, name string, conn Sender) *Player {
	return &Player{ID: id, name: name, conn: conn}
}

// Name 當前顯示名稱
func (p *Player) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// Send 透過玩家當前的傳輸句柄非阻塞發送。
// 比賽 tick 與重新綁定併發時，訊息走其中一條連接，不會撕裂。
func (p *Player) Send(message []byte) bool {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	return conn.Send(message)
}

// rebind 更新名稱與傳輸句柄（重複註冊時由註冊表調用）
func (p *Player) rebind(name string, conn Sender) {
	p.mu.Lock()
	p.name = name
	p.conn = conn
	p.mu.Unlock()
}

// PlayerRegistry 追蹤在線玩家與快速配對隊列。
//
// 隊列是嚴格的 FIFO。配對走 MatchOrEnqueue：查找對手與入隊
// 在同一次鎖內完成，兩名玩家同時配對不可能互相錯過
// （各自看到空隊列、雙雙入隊後無人再觸發配對）。
type PlayerRegistry struct {
	mu      sync.RWMutex
	players map[string]*Player // playerID -> Player
	queue   []string           // FIFO 排隊的 playerID
	total   int                // 歷史連接總數（/games/stats 用）
	logger  *slog.Logger
}

// NewPlayerRegistry 創建玩家註冊表
func NewPlayerRegistry(logger *slog.Logger) *PlayerRegistry {
	return &PlayerRegistry{
		players: make(map[string]*Player),
		logger:  logger,
	}
}

// Register 註冊玩家（同一 ID 重複註冊時更新名稱與連接句柄）
func (r *PlayerRegistry) Register(id, name string, conn Sender) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.players[id]; exists {
		p.rebind(name, conn)
		return p
	}

	p := NewPlayer(id, name, conn)
	r.players[id] = p
	r.total++

	r.logger.Info("玩家已連接", "player_id", id, "player_name", name)
	return p
}

// Get 獲取玩家
func (r *PlayerRegistry) Get(id string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, exists := r.players[id]
	return p, exists
}

// Remove 移除玩家（連接關閉時調用），同時移出隊列
func (r *PlayerRegistry) Remove(id string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.players[id]
	if !exists {
		return nil, false
	}

	delete(r.players, id)
	r.dequeueLocked(id)

	r.logger.Info("玩家已斷開", "player_id", id)
	return p, true
}

// MatchOrEnqueue 原子的配對或入隊：隊列中有其他玩家時取出最早的
// 作為對手（雙方都移出隊列），否則把自己入隊。
// 查找與入隊不可拆開，否則兩個併發的配對請求會互相錯過。
func (r *PlayerRegistry) MatchOrEnqueue(playerID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opponent, found := r.findOpponentLocked(playerID); found {
		return opponent, true
	}
	r.enqueueLocked(playerID)
	return nil, false
}

// Enqueue 加入快速配對隊列（已在隊列中時不重複加入）
func (r *PlayerRegistry) Enqueue(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueueLocked(id)
}

// enqueueLocked 入隊（需持有鎖）
func (r *PlayerRegistry) enqueueLocked(id string) {
	for _, queued := range r.queue {
		if queued == id {
			return
		}
	}
	r.queue = append(r.queue, id)

	r.logger.Info("玩家進入配對隊列", "player_id", id, "queue_size", len(r.queue))
}

// Dequeue 移出配對隊列
func (r *PlayerRegistry) Dequeue(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dequeueLocked(id)
}

// dequeueLocked 移出隊列（需持有鎖）
func (r *PlayerRegistry) dequeueLocked(id string) {
	for i, queued := range r.queue {
		if queued == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

// InQueue 玩家是否在配對隊列中
func (r *PlayerRegistry) InQueue(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, queued := range r.queue {
		if queued == id {
			return true
		}
	}
	return false
}

// FindOpponent 取出隊列中第一個不等於 playerID 的玩家，
// 並把雙方都移出隊列。找不到時返回 false，隊列不變。
func (r *PlayerRegistry) FindOpponent(playerID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOpponentLocked(playerID)
}

// findOpponentLocked 查找並取出對手（需持有鎖）
func (r *PlayerRegistry) findOpponentLocked(playerID string) (*Player, bool) {
	for _, queued := range r.queue {
		if queued == playerID {
			continue
		}
		opponent, exists := r.players[queued]
		if !exists {
			continue
		}

		r.dequeueLocked(queued)
		r.dequeueLocked(playerID)

		r.logger.Info("配對成功",
			"player_id", playerID,
			"opponent_id", queued,
			"queue_size", len(r.queue))
		return opponent, true
	}

	return nil, false
}

// OnlineCount 當前在線玩家數
func (r *PlayerRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// TotalConnected 歷史連接總數
func (r *PlayerRegistry) TotalConnected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// QueueSize 配對隊列長度
func (r *PlayerRegistry) QueueSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queue)
}
