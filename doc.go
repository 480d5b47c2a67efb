// Package pongserver 提供一個權威式（authoritative）的即時 Pong 遊戲服務器。
//
// 服務器以固定頻率（60 Hz）運行多場比賽的物理模擬，透過 WebSocket
// 將狀態同步給配對的兩名玩家，並管理賽前的房間與快速配對流程：
//
// # 房間與配對
//
// 賽前生命週期管理：
//   - 以短代碼定址的 2 人房間（創建、加入、離開、準備）
//   - FIFO 快速配對隊列（join_queue / leave_queue）
//   - 雙方準備完成後原子地升級為正式比賽
//   - 房主離開時自動轉移房主身份
//
// # 權威模擬
//
// 每場比賽獨立擁有自己的模擬狀態與 tick 循環：
//   - 固定時步物理（球、球拍、旋轉、最低速度下限）
//   - 每玩家輸入緩衝，tick 內按到達順序套用
//   - 狀態廣播節流，與模擬頻率解耦
//   - 先得 5 分者勝；斷線即判對手獲勝
//
// # 資源回收
//
// 所有後台資源都有明確的回收路徑：
//   - 閒置比賽定期掃描（預設 5 分鐘超時）
//   - 比賽結束時明確停止 tick 計時器
//   - 連接關閉視為同步事件，立即觸發離開／斷線路徑
//
// 啟動服務器：
//
//	go run ./cmd/server -config config.yaml
//
// 診斷端點：
//
//	GET /health
//	GET /games/stats
package pongserver
