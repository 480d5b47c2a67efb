package internal

import (
	"encoding/json"
	"fmt"
)

// 客戶端 → 服務器的訊息類型。
// 協議是封閉的：不在此列表中的類型一律回覆 protocol_error。
const (
	MsgCreateRoom = "create_room"
	MsgJoinRoom   = "join_room"
	MsgLeaveRoom  = "leave_room"
	MsgRoomReady  = "room_ready"
	MsgJoinQueue  = "join_queue"
	MsgLeaveQueue = "leave_queue"
	MsgGameInput  = "game_input"
	MsgPauseGame  = "pause_game"
	MsgResumeGame = "resume_game"
	MsgPing       = "ping"
)

// InputAction 玩家的球拍操作
type InputAction string

const (
	ActionMoveLeft  InputAction = "move_left"
	ActionMoveRight InputAction = "move_right"
)

// GameInput 單次遊戲輸入，timestamp 由客戶端填入（毫秒）
type GameInput struct {
	Action    InputAction `json:"action"`
	Timestamp int64       `json:"timestamp"`
}

// ClientMessage 入站訊息的判別聯合。
// 所有欄位驗證都在 ParseClientMessage 完成，業務邏輯只會看到合法訊息。
type ClientMessage struct {
	Type       string     `json:"type"`
	PlayerID   string     `json:"playerId,omitempty"`
	PlayerName string     `json:"playerName,omitempty"`
	RoomCode   string     `json:"roomCode,omitempty"`
	Ready      bool       `json:"ready,omitempty"`
	Input      *GameInput `json:"input,omitempty"`
}

// ProtocolError 格式錯誤或未知訊息。
// 回覆 protocol_error 後連接保持開啟。
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// ParseClientMessage 解析並驗證入站訊息。
// 返回 *ProtocolError 表示訊息不合法（訊息文字可直接回覆給客戶端）。
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ProtocolError{Message: "Invalid message format"}
	}

	switch msg.Type {
	case MsgCreateRoom, MsgJoinRoom:
		if msg.PlayerID == "" || msg.PlayerName == "" || msg.RoomCode == "" {
			return nil, &ProtocolError{Message: fmt.Sprintf("%s requires playerId, playerName and roomCode", msg.Type)}
		}
	case MsgLeaveRoom, MsgRoomReady:
		if msg.PlayerID == "" || msg.RoomCode == "" {
			return nil, &ProtocolError{Message: fmt.Sprintf("%s requires playerId and roomCode", msg.Type)}
		}
	case MsgJoinQueue:
		if msg.PlayerID == "" || msg.PlayerName == "" {
			return nil, &ProtocolError{Message: "join_queue requires playerId and playerName"}
		}
	case MsgLeaveQueue, MsgPauseGame, MsgResumeGame:
		if msg.PlayerID == "" {
			return nil, &ProtocolError{Message: fmt.Sprintf("%s requires playerId", msg.Type)}
		}
	case MsgGameInput:
		if msg.PlayerID == "" || msg.Input == nil {
			return nil, &ProtocolError{Message: "game_input requires playerId and input"}
		}
		if msg.Input.Action != ActionMoveLeft && msg.Input.Action != ActionMoveRight {
			return nil, &ProtocolError{Message: fmt.Sprintf("unknown input action: %s", msg.Input.Action)}
		}
	case MsgPing:
		// 無必填欄位
	case "":
		return nil, &ProtocolError{Message: "missing message type"}
	default:
		return nil, &ProtocolError{Message: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}

	return &msg, nil
}

// PlayerInfo 房間名單中的玩家資訊
type PlayerInfo struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Ready      bool   `json:"ready"`
}

// 服務器 → 客戶端的訊息。每種訊息一個結構，
// 全部為純值欄位，序列化不會失敗。

type roomCreatedMsg struct {
	Type     string       `json:"type"`
	RoomCode string       `json:"roomCode"`
	Players  []PlayerInfo `json:"players"`
}

type roomUpdatedMsg struct {
	Type     string       `json:"type"`
	RoomCode string       `json:"roomCode"`
	Players  []PlayerInfo `json:"players"`
}

type roomErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type gameStartingMsg struct {
	Type       string `json:"type"`
	GameID     string `json:"gameId"`
	PlayerSide Side   `json:"playerSide"`
	Opponent   string `json:"opponent"`
}

type matchStartMsg struct {
	Type   string          `json:"type"`
	GameID string          `json:"gameId"`
	State  SimulationState `json:"state"`
}

type gameStateMsg struct {
	Type      string          `json:"type"`
	State     SimulationState `json:"state"`
	Tick      uint64          `json:"tick"`
	Timestamp int64           `json:"timestamp"`
}

type scoreMsg struct {
	Type   string `json:"type"`
	Scorer string `json:"scorer"`
	Score  Score  `json:"score"`
}

type matchEndMsg struct {
	Type       string `json:"type"`
	Winner     string `json:"winner"`
	FinalScore Score  `json:"finalScore"`
	Reason     string `json:"reason,omitempty"`
}

type opponentDisconnectedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type protocolErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type gamePausedMsg struct {
	Type string `json:"type"`
}

type gameResumedMsg struct {
	Type string `json:"type"`
}

func newRoomCreated(code string, players []PlayerInfo) []byte {
	data, _ := json.Marshal(roomCreatedMsg{Type: "room_created", RoomCode: code, Players: players})
	return data
}

func newRoomUpdated(code string, players []PlayerInfo) []byte {
	data, _ := json.Marshal(roomUpdatedMsg{Type: "room_updated", RoomCode: code, Players: players})
	return data
}

func newRoomError(message string) []byte {
	data, _ := json.Marshal(roomErrorMsg{Type: "room_error", Message: message})
	return data
}

func newGameStarting(gameID string, side Side, opponent string) []byte {
	data, _ := json.Marshal(gameStartingMsg{Type: "game_starting", GameID: gameID, PlayerSide: side, Opponent: opponent})
	return data
}

func newMatchStart(gameID string, state SimulationState) []byte {
	data, _ := json.Marshal(matchStartMsg{Type: "match_start", GameID: gameID, State: state})
	return data
}

func newGameState(state SimulationState, tick uint64, timestamp int64) []byte {
	data, _ := json.Marshal(gameStateMsg{Type: "game_state", State: state, Tick: tick, Timestamp: timestamp})
	return data
}

func newScore(scorer string, score Score) []byte {
	data, _ := json.Marshal(scoreMsg{Type: "score", Scorer: scorer, Score: score})
	return data
}

func newMatchEnd(winner string, final Score, reason string) []byte {
	data, _ := json.Marshal(matchEndMsg{Type: "match_end", Winner: winner, FinalScore: final, Reason: reason})
	return data
}

func newOpponentDisconnected(message string) []byte {
	data, _ := json.Marshal(opponentDisconnectedMsg{Type: "opponent_disconnected", Message: message})
	return data
}

func newProtocolError(message string) []byte {
	data, _ := json.Marshal(protocolErrorMsg{Type: "protocol_error", Message: message})
	return data
}

func newPong(timestamp int64) []byte {
	data, _ := json.Marshal(pongMsg{Type: "pong", Timestamp: timestamp})
	return data
}

func newGamePaused() []byte {
	data, _ := json.Marshal(gamePausedMsg{Type: "game_paused"})
	return data
}

func newGameResumed() []byte {
	data, _ := json.Marshal(gameResumedMsg{Type: "game_resumed"})
	return data
}
