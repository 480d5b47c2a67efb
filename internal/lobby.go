package internal

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RoomError 房間操作失敗。
// 訊息以 room_error 原文回覆客戶端，且保證未改變任何狀態。
type RoomError struct {
	Message string
}

func (e *RoomError) Error() string {
	return e.Message
}

// lobbyCapacity 房間容量固定為 2（一場 Pong 恰好兩人）
const lobbyCapacity = 2

// lobbyMember 房間成員與其準備狀態
type lobbyMember struct {
	player *Player
	ready  bool
}

// Lobby 賽前房間：以短代碼定址，按加入順序保存 ≤2 名成員。
// 生命週期完全由 LobbyRegistry 擁有。
type Lobby struct {
	Code      string
	HostID    string
	members   []*lobbyMember // 按加入順序
	CreatedAt time.Time
}

// roster 生成完整名單（需在註冊表鎖內調用）
func (l *Lobby) roster() []PlayerInfo {
	players := make([]PlayerInfo, 0, len(l.members))
	for _, m := range l.members {
		players = append(players, PlayerInfo{
			PlayerID:   m.player.ID,
			PlayerName: m.player.Name(),
			Ready:      m.ready,
		})
	}
	return players
}

// find 查找成員索引（需在註冊表鎖內調用）
func (l *Lobby) find(playerID string) int {
	for i, m := range l.members {
		if m.player.ID == playerID {
			return i
		}
	}
	return -1
}

// PromoteFunc 雙方準備完成後的升級回調。
// p1 為房主（左側），p2 為後加入者（右側）。
type PromoteFunc func(p1, p2 *Player)

// LobbyRegistry 管理所有賽前房間。
//
// 單一擁有者語義：房間只會被本註冊表創建與銷毀，
// 升級為比賽時房間先從註冊表移除、再調用 promote（移交是原子的）。
type LobbyRegistry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby // 大寫房間代碼 -> Lobby
	promote PromoteFunc
	logger  *slog.Logger
}

// NewLobbyRegistry 創建房間註冊表
func NewLobbyRegistry(promote PromoteFunc, logger *slog.Logger) *LobbyRegistry {
	return &LobbyRegistry{
		lobbies: make(map[string]*Lobby),
		promote: promote,
		logger:  logger,
	}
}

// CreateRoom 創建房間，房主自動成為第一名成員。
// 成功後向房主回覆 room_created。
func (r *LobbyRegistry) CreateRoom(code string, host *Player) error {
	code = strings.ToUpper(code)

	r.mu.Lock()
	if _, exists := r.lobbies[code]; exists {
		r.mu.Unlock()
		return &RoomError{Message: "Room already exists"}
	}

	lobby := &Lobby{
		Code:      code,
		HostID:    host.ID,
		members:   []*lobbyMember{{player: host}},
		CreatedAt: time.Now(),
	}
	r.lobbies[code] = lobby
	players := lobby.roster()
	r.mu.Unlock()

	host.Send(newRoomCreated(code, players))

	r.logger.Info("房間已創建", "room_code", code, "host_id", host.ID)
	return nil
}

// JoinRoom 加入房間，成功後向所有成員廣播完整名單
func (r *LobbyRegistry) JoinRoom(code string, player *Player) error {
	code = strings.ToUpper(code)

	r.mu.Lock()
	lobby, exists := r.lobbies[code]
	if !exists {
		r.mu.Unlock()
		return &RoomError{Message: "Room not found"}
	}
	if len(lobby.members) >= lobbyCapacity {
		r.mu.Unlock()
		return &RoomError{Message: "Room is full"}
	}
	if lobby.find(player.ID) != -1 {
		r.mu.Unlock()
		return &RoomError{Message: "Player already in room"}
	}

	lobby.members = append(lobby.members, &lobbyMember{player: player})
	players := lobby.roster()
	conns := lobby.senders()
	r.mu.Unlock()

	broadcast(conns, newRoomUpdated(code, players))

	r.logger.Info("玩家加入房間", "room_code", code, "player_id", player.ID)
	return nil
}

// SetReady 更新準備狀態並廣播名單。
// 兩名成員都準備好時，房間原子地移交給 promote 並從註冊表刪除。
func (r *LobbyRegistry) SetReady(code, playerID string, ready bool) error {
	code = strings.ToUpper(code)

	r.mu.Lock()
	lobby, exists := r.lobbies[code]
	if !exists {
		r.mu.Unlock()
		return &RoomError{Message: "Room not found"}
	}
	idx := lobby.find(playerID)
	if idx == -1 {
		r.mu.Unlock()
		return &RoomError{Message: "Player not in room"}
	}

	lobby.members[idx].ready = ready

	// 雙方到齊且都準備好 → 升級為比賽
	if len(lobby.members) == lobbyCapacity && lobby.members[0].ready && lobby.members[1].ready {
		p1 := lobby.members[0].player
		p2 := lobby.members[1].player
		delete(r.lobbies, code)
		r.mu.Unlock()

		r.logger.Info("房間升級為比賽", "room_code", code, "p1", p1.ID, "p2", p2.ID)
		r.promote(p1, p2)
		return nil
	}

	players := lobby.roster()
	conns := lobby.senders()
	r.mu.Unlock()

	broadcast(conns, newRoomUpdated(code, players))
	return nil
}

// LeaveRoom 離開房間。
// 房主離開且還有其他成員時，房主身份轉移給最早加入的剩餘成員；
// 房間清空時直接刪除。
func (r *LobbyRegistry) LeaveRoom(code, playerID string) error {
	code = strings.ToUpper(code)

	r.mu.Lock()
	lobby, exists := r.lobbies[code]
	if !exists {
		r.mu.Unlock()
		return &RoomError{Message: "Room not found"}
	}
	idx := lobby.find(playerID)
	if idx == -1 {
		r.mu.Unlock()
		return &RoomError{Message: "Player not in room"}
	}

	lobby.members = append(lobby.members[:idx], lobby.members[idx+1:]...)

	if len(lobby.members) == 0 {
		delete(r.lobbies, code)
		r.mu.Unlock()
		r.logger.Info("房間已清空刪除", "room_code", code)
		return nil
	}

	// 成員順序即加入順序，第一個就是最早加入者
	if lobby.HostID == playerID {
		lobby.HostID = lobby.members[0].player.ID
		r.logger.Info("房主已轉移", "room_code", code, "new_host", lobby.HostID)
	}

	players := lobby.roster()
	conns := lobby.senders()
	r.mu.Unlock()

	broadcast(conns, newRoomUpdated(code, players))

	r.logger.Info("玩家離開房間", "room_code", code, "player_id", playerID)
	return nil
}

// RemovePlayer 斷線路徑：從玩家所在的房間（如有）移除。
// 返回玩家先前所在的房間代碼。
func (r *LobbyRegistry) RemovePlayer(playerID string) (string, bool) {
	r.mu.RLock()
	var code string
	for c, lobby := range r.lobbies {
		if lobby.find(playerID) != -1 {
			code = c
			break
		}
	}
	r.mu.RUnlock()

	if code == "" {
		return "", false
	}
	// LeaveRoom 重新取鎖；玩家剛好已被移除時錯誤可忽略
	_ = r.LeaveRoom(code, playerID)
	return code, true
}

// InLobby 玩家是否在某個房間中（與配對隊列互斥用）
func (r *LobbyRegistry) InLobby(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lobby := range r.lobbies {
		if lobby.find(playerID) != -1 {
			return true
		}
	}
	return false
}

// Roster 獲取房間名單
func (r *LobbyRegistry) Roster(code string) ([]PlayerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lobby, exists := r.lobbies[strings.ToUpper(code)]
	if !exists {
		return nil, &RoomError{Message: "Room not found"}
	}
	return lobby.roster(), nil
}

// HostOf 獲取房主 ID
func (r *LobbyRegistry) HostOf(code string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lobby, exists := r.lobbies[strings.ToUpper(code)]
	if !exists {
		return "", &RoomError{Message: "Room not found"}
	}
	return lobby.HostID, nil
}

// Count 當前房間數
func (r *LobbyRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}

// senders 收集目前的成員（需在註冊表鎖內調用）
func (l *Lobby) senders() []*Player {
	players := make([]*Player, 0, len(l.members))
	for _, m := range l.members {
		players = append(players, m.player)
	}
	return players
}

// broadcast 向一組玩家非阻塞地發送同一訊息
func broadcast(players []*Player, message []byte) {
	for _, p := range players {
		p.Send(message)
	}
}
