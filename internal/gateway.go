package internal

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 心跳參數：54 秒 Ping 配 60 秒讀取超時，
// 避開常見代理服務器的 60 秒閒置閾值並留 6 秒余量。
const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 256
)

// Gateway 連接閘道：每條連接的訊息解析與分發。
// 這裡不含業務邏輯，只做路由：
//
//	賽前訊息 → LobbyRegistry / PlayerRegistry
//	遊戲輸入 → MatchCoordinator 索引到的 Match
//	連接關閉 → 同步觸發離開／斷線路徑
type Gateway struct {
	upgrader    websocket.Upgrader
	players     *PlayerRegistry
	lobbies     *LobbyRegistry
	coordinator *MatchCoordinator
	logger      *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn // connID -> Conn
}

// Conn 單條 WebSocket 連接。
// 出站訊息走緩衝 channel 非阻塞發送，慢客戶端的訊息被丟棄
// 而不是拖慢發送方（模擬 tick 絕不能等網路）。
type Conn struct {
	ID        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	gw        *Gateway
	mu        sync.Mutex
	playerID  string // 第一個帶身份的訊息綁定
	closeOnce sync.Once
}

// NewGateway 創建連接閘道
func NewGateway(players *PlayerRegistry, lobbies *LobbyRegistry, coordinator *MatchCoordinator, logger *slog.Logger) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 身份驗證在上游完成，這裡信任所有來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		players:     players,
		lobbies:     lobbies,
		coordinator: coordinator,
		logger:      logger,
		conns:       make(map[string]*Conn),
	}
}

// ServeWS 處理 WebSocket 升級並啟動讀寫 goroutine
func (gw *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := &Conn{
		ID:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		gw:   gw,
	}

	gw.mu.Lock()
	gw.conns[conn.ID] = conn
	gw.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	gw.logger.Info("WebSocket 連接建立", "conn_id", conn.ID)
}

// Send 非阻塞發送，連接已關閉或緩衝滿時丟棄並返回 false
func (c *Conn) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// close 標記連接關閉並斷開底層 socket（冪等）
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// boundPlayer 此連接綁定的玩家 ID
func (c *Conn) boundPlayer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// bind 綁定玩家 ID
func (c *Conn) bind(playerID string) {
	c.mu.Lock()
	c.playerID = playerID
	c.mu.Unlock()
}

// readPump 讀取並分發客戶端訊息。
// 退出即代表連接關閉：同步觸發斷線處理後才返回。
func (c *Conn) readPump() {
	defer func() {
		c.close()
		c.gw.handleClose(c)
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.gw.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.gw.dispatch(c, message)
		}
	}
}

// writePump 把緩衝的出站訊息寫入 socket，並定期發送協議層 Ping
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出隊列中剩餘的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			deadline := time.Now().Add(time.Second)
			if err := c.ws.SetWriteDeadline(deadline); err == nil {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
	}
}

// dispatch 解析入站訊息並路由。
// 解析失敗回覆 protocol_error，連接保持開啟。
func (gw *Gateway) dispatch(c *Conn, data []byte) {
	msg, err := ParseClientMessage(data)
	if err != nil {
		c.Send(newProtocolError(err.Error()))
		gw.logger.Warn("協議錯誤", "error", err, "conn_id", c.ID)
		return
	}

	switch msg.Type {
	case MsgPing:
		c.Send(newPong(time.Now().UnixMilli()))

	case MsgCreateRoom:
		player := gw.bindPlayer(c, msg)
		if gw.players.InQueue(player.ID) {
			c.Send(newRoomError("Leave the queue before joining a room"))
			return
		}
		gw.replyOnError(c, gw.lobbies.CreateRoom(msg.RoomCode, player))

	case MsgJoinRoom:
		player := gw.bindPlayer(c, msg)
		if gw.players.InQueue(player.ID) {
			c.Send(newRoomError("Leave the queue before joining a room"))
			return
		}
		gw.replyOnError(c, gw.lobbies.JoinRoom(msg.RoomCode, player))

	case MsgLeaveRoom:
		gw.replyOnError(c, gw.lobbies.LeaveRoom(msg.RoomCode, msg.PlayerID))

	case MsgRoomReady:
		gw.replyOnError(c, gw.lobbies.SetReady(msg.RoomCode, msg.PlayerID, msg.Ready))

	case MsgJoinQueue:
		player := gw.bindPlayer(c, msg)
		if gw.lobbies.InLobby(player.ID) {
			c.Send(newRoomError("Leave your room before joining the queue"))
			return
		}
		// 配對或入隊是單一原子操作，兩個併發的請求不會互相錯過
		if opponent, found := gw.players.MatchOrEnqueue(player.ID); found {
			// 對手排在前面，擔任左側
			if _, err := gw.coordinator.StartMatch(opponent, player); err != nil {
				gw.logger.Error("快速配對創建比賽失敗", "error", err)
			}
		}

	case MsgLeaveQueue:
		gw.players.Dequeue(msg.PlayerID)

	case MsgGameInput:
		match := gw.coordinator.GetMatchByPlayer(msg.PlayerID)
		if match == nil {
			// 路由未命中：靜默丟棄，只留日誌，不回覆客戶端
			gw.logger.Debug("遊戲輸入無對應比賽，丟棄", "player_id", msg.PlayerID)
			return
		}
		match.QueueInput(msg.PlayerID, *msg.Input)

	case MsgPauseGame:
		if match := gw.coordinator.GetMatchByPlayer(msg.PlayerID); match != nil {
			match.Pause()
		}

	case MsgResumeGame:
		if match := gw.coordinator.GetMatchByPlayer(msg.PlayerID); match != nil {
			match.Resume()
		}
	}
}

// bindPlayer 註冊玩家並把連接綁定到該身份
func (gw *Gateway) bindPlayer(c *Conn, msg *ClientMessage) *Player {
	player := gw.players.Register(msg.PlayerID, msg.PlayerName, c)
	c.bind(player.ID)
	return player
}

// replyOnError 房間操作失敗時回覆 room_error，其他錯誤只記日誌
func (gw *Gateway) replyOnError(c *Conn, err error) {
	if err == nil {
		return
	}

	var roomErr *RoomError
	if errors.As(err, &roomErr) {
		c.Send(newRoomError(roomErr.Message))
		return
	}
	gw.logger.Error("房間操作失敗", "error", err, "conn_id", c.ID)
}

// handleClose 連接關閉：按順序取消配對等待、離開房間、結束比賽。
// 斷線是同步事件，在下一個 tick 之前就完成處理。
func (gw *Gateway) handleClose(c *Conn) {
	gw.mu.Lock()
	delete(gw.conns, c.ID)
	gw.mu.Unlock()

	playerID := c.boundPlayer()
	if playerID == "" {
		gw.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
		return
	}

	gw.players.Remove(playerID) // 同時移出配對隊列
	gw.lobbies.RemovePlayer(playerID)
	gw.coordinator.HandleDisconnect(playerID)

	gw.logger.Info("WebSocket 連接關閉",
		"conn_id", c.ID,
		"player_id", playerID)
}

// ConnCount 當前連接數
func (gw *Gateway) ConnCount() int {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return len(gw.conns)
}

// Stop 關閉所有連接
func (gw *Gateway) Stop() {
	gw.mu.Lock()
	conns := make([]*Conn, 0, len(gw.conns))
	for _, conn := range gw.conns {
		conns = append(conns, conn)
	}
	gw.conns = make(map[string]*Conn)
	gw.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}

	gw.logger.Info("連接閘道已停止")
}
