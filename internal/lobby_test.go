package internal_test

import (
	"testing"

	"github.com/koopa0/pong-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noPromote 測試用：不應被觸發的升級回調
func noPromote(t *testing.T) internal.PromoteFunc {
	return func(p1, p2 *internal.Player) {
		t.Fatalf("unexpected promote: %s vs %s", p1.ID, p2.ID)
	}
}

// TestLobbyRegistry_CreateRoom 測試創建房間
func TestLobbyRegistry_CreateRoom(t *testing.T) {
	registry := internal.NewLobbyRegistry(noPromote(t), testLogger())
	host, conn := newTestPlayer("p1", "Alice")

	require.NoError(t, registry.CreateRoom("ab12", host))

	// 房間代碼統一為大寫
	hostID, err := registry.HostOf("AB12")
	require.NoError(t, err)
	assert.Equal(t, "p1", hostID)
	assert.Equal(t, 1, registry.Count())

	// 房主收到 room_created，名單只有自己
	created := conn.typed("room_created")
	require.Len(t, created, 1)
	assert.Equal(t, "AB12", created[0]["roomCode"])
	players, ok := created[0]["players"].([]any)
	require.True(t, ok)
	assert.Len(t, players, 1)

	// 同代碼重複創建失敗，且不影響原房間
	host2, _ := newTestPlayer("p2", "Bob")
	err = registry.CreateRoom("AB12", host2)
	var rerr *internal.RoomError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Room already exists", rerr.Message)
	assert.Equal(t, 1, registry.Count())
}

// TestLobbyRegistry_JoinRoom 測試加入房間
func TestLobbyRegistry_JoinRoom(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *internal.LobbyRegistry)
		code    string
		player  string
		wantErr string
	}{
		{
			name:    "room not found",
			setup:   func(r *internal.LobbyRegistry) {},
			code:    "ZZ99",
			player:  "p2",
			wantErr: "Room not found",
		},
		{
			name: "room is full",
			setup: func(r *internal.LobbyRegistry) {
				host, _ := newTestPlayer("p1", "Alice")
				joiner, _ := newTestPlayer("p2", "Bob")
				require.NoError(t, r.CreateRoom("AB12", host))
				require.NoError(t, r.JoinRoom("AB12", joiner))
			},
			code:    "AB12",
			player:  "p3",
			wantErr: "Room is full",
		},
		{
			name: "player already in room",
			setup: func(r *internal.LobbyRegistry) {
				host, _ := newTestPlayer("p1", "Alice")
				require.NoError(t, r.CreateRoom("AB12", host))
			},
			code:    "AB12",
			player:  "p1",
			wantErr: "Player already in room",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := internal.NewLobbyRegistry(noPromote(t), testLogger())
			tt.setup(registry)

			player, _ := newTestPlayer(tt.player, "Player")
			err := registry.JoinRoom(tt.code, player)

			var rerr *internal.RoomError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.wantErr, rerr.Message)
		})
	}
}

// TestLobbyRegistry_JoinBroadcastsRoster 加入成功後所有成員收到完整名單
func TestLobbyRegistry_JoinBroadcastsRoster(t *testing.T) {
	registry := internal.NewLobbyRegistry(noPromote(t), testLogger())
	host, hostConn := newTestPlayer("p1", "Alice")
	joiner, joinerConn := newTestPlayer("p2", "Bob")

	require.NoError(t, registry.CreateRoom("AB12", host))
	require.NoError(t, registry.JoinRoom("ab12", joiner)) // 小寫代碼同樣命中

	for _, conn := range []*fakeConn{hostConn, joinerConn} {
		updated := conn.typed("room_updated")
		require.Len(t, updated, 1)
		players, ok := updated[0]["players"].([]any)
		require.True(t, ok)
		require.Len(t, players, 2)

		// 名單保持加入順序
		first, _ := players[0].(map[string]any)
		second, _ := players[1].(map[string]any)
		assert.Equal(t, "p1", first["playerId"])
		assert.Equal(t, "p2", second["playerId"])
	}
}

// TestLobbyRegistry_ReadyPromotes 雙方準備好後房間升級為比賽
func TestLobbyRegistry_ReadyPromotes(t *testing.T) {
	var promoted [2]string
	registry := internal.NewLobbyRegistry(func(p1, p2 *internal.Player) {
		promoted[0] = p1.ID
		promoted[1] = p2.ID
	}, testLogger())

	host, hostConn := newTestPlayer("p1", "Alice")
	joiner, _ := newTestPlayer("p2", "Bob")
	require.NoError(t, registry.CreateRoom("AB12", host))
	require.NoError(t, registry.JoinRoom("AB12", joiner))

	// 單方準備：只廣播名單，不升級
	require.NoError(t, registry.SetReady("AB12", "p1", true))
	assert.Empty(t, promoted[0])

	updated, ok := hostConn.last("room_updated")
	require.True(t, ok)
	players, _ := updated["players"].([]any)
	first, _ := players[0].(map[string]any)
	assert.Equal(t, true, first["ready"])

	// 取消準備後再雙方準備
	require.NoError(t, registry.SetReady("AB12", "p1", false))
	require.NoError(t, registry.SetReady("AB12", "p2", true))
	require.NoError(t, registry.SetReady("AB12", "p1", true))

	// 房主為 p1（左側），後加入者為 p2
	assert.Equal(t, "p1", promoted[0])
	assert.Equal(t, "p2", promoted[1])

	// 升級後房間已刪除
	assert.Zero(t, registry.Count())
	_, err := registry.Roster("AB12")
	var rerr *internal.RoomError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Room not found", rerr.Message)
}

// TestLobbyRegistry_LeaveRoom 測試離開房間與房主轉移
func TestLobbyRegistry_LeaveRoom(t *testing.T) {
	registry := internal.NewLobbyRegistry(noPromote(t), testLogger())
	host, _ := newTestPlayer("p1", "Alice")
	joiner, joinerConn := newTestPlayer("p2", "Bob")
	require.NoError(t, registry.CreateRoom("AB12", host))
	require.NoError(t, registry.JoinRoom("AB12", joiner))

	// 房主離開：房主身份轉移給最早加入的剩餘成員
	require.NoError(t, registry.LeaveRoom("AB12", "p1"))

	hostID, err := registry.HostOf("AB12")
	require.NoError(t, err)
	assert.Equal(t, "p2", hostID)

	updated, ok := joinerConn.last("room_updated")
	require.True(t, ok)
	players, _ := updated["players"].([]any)
	assert.Len(t, players, 1)

	// 最後一人離開：房間刪除
	require.NoError(t, registry.LeaveRoom("AB12", "p2"))
	assert.Zero(t, registry.Count())

	err = registry.LeaveRoom("AB12", "p2")
	var rerr *internal.RoomError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Room not found", rerr.Message)
}

// TestLobbyRegistry_RemovePlayer 斷線路徑：按玩家 ID 找到所在房間並移除
func TestLobbyRegistry_RemovePlayer(t *testing.T) {
	registry := internal.NewLobbyRegistry(noPromote(t), testLogger())
	host, _ := newTestPlayer("p1", "Alice")
	joiner, _ := newTestPlayer("p2", "Bob")
	require.NoError(t, registry.CreateRoom("AB12", host))
	require.NoError(t, registry.JoinRoom("AB12", joiner))

	code, found := registry.RemovePlayer("p2")
	require.True(t, found)
	assert.Equal(t, "AB12", code)
	assert.False(t, registry.InLobby("p2"))
	assert.True(t, registry.InLobby("p1"))

	// 不在任何房間的玩家
	_, found = registry.RemovePlayer("p9")
	assert.False(t, found)
}
