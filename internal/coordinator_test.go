package internal_test

import (
	"sync"
	"testing"
	"time"

	"github.com/koopa0/pong-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReporter 記錄上報的比賽結果
type fakeReporter struct {
	mu      sync.Mutex
	results []internal.MatchResult
}

func (r *fakeReporter) Publish(result internal.MatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *fakeReporter) all() []internal.MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]internal.MatchResult(nil), r.results...)
}

// TestMatchCoordinator_StartMatch 測試完整的開賽流程
func TestMatchCoordinator_StartMatch(t *testing.T) {
	coordinator := internal.NewMatchCoordinator(testConfig(), nil, testLogger())
	defer coordinator.Stop()

	p1, conn1 := newTestPlayer("p1", "Alice")
	p2, conn2 := newTestPlayer("p2", "Bob")

	match, err := coordinator.StartMatch(p1, p2)
	require.NoError(t, err)

	// 側面指定：先手左側、後手右側
	assert.Equal(t, internal.SideLeft, p1.Side)
	assert.Equal(t, internal.SideRight, p2.Side)

	// 雙方收到同一 gameId、相反的 playerSide，對手名字正確
	starting1 := conn1.typed("game_starting")
	starting2 := conn2.typed("game_starting")
	require.Len(t, starting1, 1)
	require.Len(t, starting2, 1)
	assert.Equal(t, starting1[0]["gameId"], starting2[0]["gameId"])
	assert.Equal(t, "left", starting1[0]["playerSide"])
	assert.Equal(t, "right", starting2[0]["playerSide"])
	assert.Equal(t, "Bob", starting1[0]["opponent"])
	assert.Equal(t, "Alice", starting2[0]["opponent"])

	// game_starting 之後才是 match_start
	require.Len(t, conn1.typed("match_start"), 1)
	assert.Equal(t, internal.MatchPlaying, match.State())

	// 玩家索引可路由輸入
	assert.Same(t, match, coordinator.GetMatchByPlayer("p1"))
	assert.Same(t, match, coordinator.GetMatchByPlayer("p2"))
	assert.Nil(t, coordinator.GetMatchByPlayer("p9"))

	total, active := coordinator.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, active)
}

// TestMatchCoordinator_RejectsDoubleBooking 玩家不能同時屬於兩場比賽
func TestMatchCoordinator_RejectsDoubleBooking(t *testing.T) {
	coordinator := internal.NewMatchCoordinator(testConfig(), nil, testLogger())
	defer coordinator.Stop()

	p1, _ := newTestPlayer("p1", "Alice")
	p2, _ := newTestPlayer("p2", "Bob")
	p3, _ := newTestPlayer("p3", "Carol")

	_, err := coordinator.StartMatch(p1, p2)
	require.NoError(t, err)

	_, err = coordinator.CreateMatch(p1, p3)
	assert.Error(t, err)
	_, err = coordinator.CreateMatch(p3, p2)
	assert.Error(t, err)

	// 失敗不影響現有索引
	assert.NotNil(t, coordinator.GetMatchByPlayer("p1"))
	assert.Nil(t, coordinator.GetMatchByPlayer("p3"))
}

// TestMatchCoordinator_CleanupAndReport 比賽結束後索引被清理且結果上報
func TestMatchCoordinator_CleanupAndReport(t *testing.T) {
	reporter := &fakeReporter{}
	coordinator := internal.NewMatchCoordinator(testConfig(), reporter, testLogger())
	defer coordinator.Stop()

	p1, _ := newTestPlayer("p1", "Alice")
	p2, _ := newTestPlayer("p2", "Bob")
	match, err := coordinator.StartMatch(p1, p2)
	require.NoError(t, err)

	require.True(t, coordinator.HandleDisconnect("p1"))

	// 清理是異步的（事件驅動）
	assert.Eventually(t, func() bool {
		return coordinator.GetMatchByPlayer("p1") == nil &&
			coordinator.GetMatchByPlayer("p2") == nil
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(reporter.all()) == 1
	}, time.Second, 10*time.Millisecond)

	result := reporter.all()[0]
	assert.Equal(t, match.ID, result.GameID)
	assert.Equal(t, "p2", result.Winner)
	assert.Equal(t, "p1", result.Loser)
	assert.Equal(t, internal.ReasonDisconnected, result.Reason)
	assert.False(t, result.FinishedAt.IsZero())

	// 清理後玩家可再次開賽
	_, err = coordinator.StartMatch(p1, p2)
	require.NoError(t, err)

	total, active := coordinator.Stats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)

	// 不在比賽中的玩家斷線是 no-op
	assert.False(t, coordinator.HandleDisconnect("p9"))
}

// TestMatchCoordinator_Sweep 閒置比賽被異常終止
func TestMatchCoordinator_Sweep(t *testing.T) {
	cfg := testConfig()
	cfg.Game.MatchTimeout = time.Nanosecond
	coordinator := internal.NewMatchCoordinator(cfg, nil, testLogger())
	defer coordinator.Stop()

	p1, conn1 := newTestPlayer("p1", "Alice")
	p2, _ := newTestPlayer("p2", "Bob")
	match, err := coordinator.StartMatch(p1, p2)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	coordinator.Sweep()

	assert.Equal(t, internal.MatchFinished, match.State())

	ends := conn1.typed("match_end")
	require.Len(t, ends, 1)
	assert.Equal(t, "", ends[0]["winner"])
	assert.Equal(t, internal.ReasonTimeout, ends[0]["reason"])

	assert.Eventually(t, func() bool {
		_, active := coordinator.Stats()
		return active == 0
	}, time.Second, 10*time.Millisecond)
}

// TestMatchCoordinator_Stop 關閉時所有比賽以 server_shutdown 終止
func TestMatchCoordinator_Stop(t *testing.T) {
	coordinator := internal.NewMatchCoordinator(testConfig(), nil, testLogger())

	p1, conn1 := newTestPlayer("p1", "Alice")
	p2, _ := newTestPlayer("p2", "Bob")
	match, err := coordinator.StartMatch(p1, p2)
	require.NoError(t, err)

	coordinator.Stop()

	assert.Equal(t, internal.MatchFinished, match.State())

	ends := conn1.typed("match_end")
	require.Len(t, ends, 1)
	assert.Equal(t, internal.ReasonShutdown, ends[0]["reason"])
}
