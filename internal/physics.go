package internal

import (
	"math"
	"math/rand"
)

// 場地與球體常數，與前端渲染配置對齊，
// 確保服務器權威模擬與客戶端本地預測一致。
const (
	// FieldHalfWidth 場地半寬（X 軸邊界）
	FieldHalfWidth = 6.0
	// wallMargin 反彈後將球夾回邊界內的餘量，防止黏牆
	wallMargin = 0.1

	// PaddleZLeft / PaddleZRight 球拍的固定 Z 座標
	PaddleZLeft  = -8.25
	PaddleZRight = 8.25
	// paddleBandDepth 碰撞帶深度（球拍 Z 座標前後各 0.2）
	paddleBandDepth = 0.2

	// PaddleLimit 球拍 X 座標限制：|x| <= PaddleLimit
	PaddleLimit = 5.4
	// PaddleHalfWidth 球拍半寬（碰撞與旋轉計算用）
	PaddleHalfWidth = 0.65
	// PaddleSpeed 單次輸入的球拍位移
	PaddleSpeed = 0.2

	// BallServeSpeed 發球速度
	BallServeSpeed = 0.08
	// BallNormalSpeed 首次擊球後的正常速度
	BallNormalSpeed = 0.15
	// BallMinSpeed 速度下限，低於此值按方向等比放大
	BallMinSpeed = 0.05
	// SpinFactor 旋轉係數：vx += (擊球偏移 / 球拍半寬) * SpinFactor
	SpinFactor = 0.15

	// ScoreBoundary 得分邊界：|z| 越過即得分
	ScoreBoundary = 8.5
)

// Side 玩家所在的球拍側
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Opposite 返回對側
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Ball 球的位置與速度
type Ball struct {
	X  float64 `json:"x"`
	Z  float64 `json:"z"`
	VX float64 `json:"vx"`
	VZ float64 `json:"vz"`
}

// Paddle 球拍（只在 X 軸移動）
type Paddle struct {
	X float64 `json:"x"`
}

// Paddles 左右球拍
type Paddles struct {
	Left  Paddle `json:"left"`
	Right Paddle `json:"right"`
}

// Score 比分。P1 持左拍，P2 持右拍。
type Score struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// SimulationState 一場比賽的完整物理狀態
type SimulationState struct {
	Ball    Ball    `json:"ball"`
	Paddles Paddles `json:"paddles"`
	Score   Score   `json:"score"`
}

// StepResult 單次 tick 的物理事件。
// 每次牆面或球拍接觸最多翻轉一個速度分量的符號。
type StepResult struct {
	WallHit   bool
	PaddleHit Side // 空值表示無擊球
	Scorer    Side // 空值表示無得分
}

// Simulation 權威物理模擬。
//
// 不做任何併發控制：每個 Simulation 由其所屬的 Match 獨佔，
// 所有讀寫都必須經過 Match 的方法（單一寫者不變式）。
type Simulation struct {
	State SimulationState

	// firstHit 每次發球後的首次擊拍會把球速從發球速度
	// 提升到正常速度（保持方向）
	firstHit bool
	rng      *rand.Rand
}

// NewSimulation 創建模擬，球拍置中、比分歸零。
// seed 固定時模擬完全可重現（測試用）。
func NewSimulation(seed int64) *Simulation {
	return &Simulation{
		rng: rand.New(rand.NewSource(seed)), // #nosec G404 - 遊戲隨機性，非密碼學用途
	}
}

// ServeRandom 隨機方向發球（開局用）
func (s *Simulation) ServeRandom() {
	dir := 1.0
	if s.rng.Float64() < 0.5 {
		dir = -1.0
	}
	s.Serve(dir)
}

// Serve 發球：球置中，VZ 指向 dir 方向，VX 帶少量隨機橫向偏移
func (s *Simulation) Serve(dir float64) {
	s.State.Ball = Ball{
		X:  0,
		Z:  0,
		VX: (s.rng.Float64() - 0.5) * BallServeSpeed,
		VZ: dir * BallServeSpeed,
	}
	s.firstHit = true
}

// MovePaddle 套用一次移動輸入，並夾在 [-PaddleLimit, PaddleLimit] 內
func (s *Simulation) MovePaddle(side Side, action InputAction) {
	var paddle *Paddle
	if side == SideLeft {
		paddle = &s.State.Paddles.Left
	} else {
		paddle = &s.State.Paddles.Right
	}

	switch action {
	case ActionMoveLeft:
		paddle.X -= PaddleSpeed
	case ActionMoveRight:
		paddle.X += PaddleSpeed
	}

	paddle.X = math.Max(-PaddleLimit, math.Min(PaddleLimit, paddle.X))
}

// Step 推進一個固定時步：積分 → 牆面反彈 → 球拍碰撞 → 得分判定。
// 得分時比分恰好 +1，並立即向失分方重新發球。
func (s *Simulation) Step() StepResult {
	var result StepResult
	ball := &s.State.Ball

	// 積分
	ball.X += ball.VX
	ball.Z += ball.VZ

	// 牆面反彈：翻轉 VX 並夾回邊界內，防止黏牆
	if ball.X <= -FieldHalfWidth || ball.X >= FieldHalfWidth {
		ball.VX = -ball.VX
		ball.X = math.Max(-(FieldHalfWidth - wallMargin), math.Min(FieldHalfWidth-wallMargin, ball.X))
		result.WallHit = true
	}

	// 左拍碰撞：VZ 轉為遠離球拍（正方向）
	if ball.Z >= PaddleZLeft-paddleBandDepth && ball.Z <= PaddleZLeft+paddleBandDepth &&
		math.Abs(ball.X-s.State.Paddles.Left.X) < PaddleHalfWidth {
		ball.VZ = math.Abs(ball.VZ)
		s.applyFirstHit(ball)
		s.applySpin(ball, s.State.Paddles.Left)
		result.PaddleHit = SideLeft
	}

	// 右拍碰撞：VZ 轉為遠離球拍（負方向）
	if ball.Z >= PaddleZRight-paddleBandDepth && ball.Z <= PaddleZRight+paddleBandDepth &&
		math.Abs(ball.X-s.State.Paddles.Right.X) < PaddleHalfWidth {
		ball.VZ = -math.Abs(ball.VZ)
		s.applyFirstHit(ball)
		s.applySpin(ball, s.State.Paddles.Right)
		result.PaddleHit = SideRight
	}

	// 得分判定：球越過遠端邊界，發球方向指向剛被得分的一方
	if ball.Z <= -ScoreBoundary {
		s.State.Score.P2++
		result.Scorer = SideRight
		s.Serve(-1)
	} else if ball.Z >= ScoreBoundary {
		s.State.Score.P1++
		result.Scorer = SideLeft
		s.Serve(1)
	}

	return result
}

// applyFirstHit 發球後首次擊拍：速度等比提升到正常速度
func (s *Simulation) applyFirstHit(ball *Ball) {
	if !s.firstHit {
		return
	}
	s.firstHit = false

	speed := math.Hypot(ball.VX, ball.VZ)
	if speed == 0 {
		return
	}
	ball.VX = ball.VX / speed * BallNormalSpeed
	ball.VZ = ball.VZ / speed * BallNormalSpeed
}

// applySpin 按擊球偏移加旋轉，並維持速度下限。
// 偏移越大旋轉越強（量值對 |偏移| 單調遞增）。
func (s *Simulation) applySpin(ball *Ball, paddle Paddle) {
	hitOffset := (ball.X - paddle.X) / PaddleHalfWidth
	ball.VX += hitOffset * SpinFactor

	// 速度下限：等比放大，保持方向
	speed := math.Hypot(ball.VX, ball.VZ)
	if speed > 0 && speed < BallMinSpeed {
		factor := BallMinSpeed / speed
		ball.VX *= factor
		ball.VZ *= factor
	}
}
