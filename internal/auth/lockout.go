package auth

import (
	"time"

	"github.com/hitoshi/estadias/internal/model"
)

// 既定のロックアウト設定。
const (
	DefaultLockoutThreshold = 7
	DefaultLockoutDuration  = 15 * time.Minute
)

// Decision はロックアウトポリシーの判定結果を表す。
type Decision string

const (
	// DecisionSucceed は認証成功。カウンタとロックをクリアする。
	DecisionSucceed Decision = "succeed"
	// DecisionFail は認証失敗。失敗回数を加算する。
	DecisionFail Decision = "fail"
	// DecisionLocked はロック中のため認証情報を確認せずに拒否する。
	DecisionLocked Decision = "locked"
	// DecisionLockNow は今回の失敗で閾値に達したためロックする。
	DecisionLockNow Decision = "lock_now"
)

// Outcome はポリシー判定の結果と利用者に返す付加情報を保持する。
type Outcome struct {
	Decision          Decision
	AttemptsRemaining int       // DecisionFailのとき
	MinutesRemaining  int       // DecisionLockedのとき
	LockUntil         time.Time // DecisionLocked / DecisionLockNowのとき
}

// LockoutPolicy はログイン失敗回数に基づくロックアウトの純粋な判定ロジック。
// 永続化は行わず、現在の状態と時刻から次の状態を返す。
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy はLockoutPolicyを生成する。0以下の値は既定値に置き換える。
func NewLockoutPolicy(threshold int, duration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return LockoutPolicy{Threshold: threshold, Duration: duration}
}

// Check は認証情報を確認する前のロック判定を行う。
// ロック中ならDecisionLockedと残り分数（切り上げ）を返し、それ以外はDecisionSucceedを返す。
func (p LockoutPolicy) Check(state model.LockState, now time.Time) Outcome {
	if state.LockedAt(now) {
		return Outcome{
			Decision:         DecisionLocked,
			MinutesRemaining: minutesUntil(*state.LockUntil, now),
			LockUntil:        *state.LockUntil,
		}
	}
	return Outcome{Decision: DecisionSucceed}
}

// Fail は認証失敗を反映した次の状態を返す。
// 期限切れのロックは失敗回数0から数え直す。閾値に達した場合は回数を0に戻してロックする。
// 行ロック取得後に別リクエストがロックを設定していた場合はそのままDecisionLockedを返す。
func (p LockoutPolicy) Fail(state model.LockState, now time.Time) (model.LockState, Outcome) {
	if state.LockedAt(now) {
		return state, p.Check(state, now)
	}

	attempts := state.Attempts
	if state.LockUntil != nil {
		attempts = 0
	}
	attempts++

	if attempts >= p.Threshold {
		until := now.Add(p.Duration)
		return model.LockState{Attempts: 0, LockUntil: &until}, Outcome{
			Decision:         DecisionLockNow,
			MinutesRemaining: minutesUntil(until, now),
			LockUntil:        until,
		}
	}

	return model.LockState{Attempts: attempts}, Outcome{
		Decision:          DecisionFail,
		AttemptsRemaining: p.Threshold - attempts,
	}
}

// Succeed は認証成功後の状態を返す。
func (p LockoutPolicy) Succeed() model.LockState {
	return model.LockState{}
}

// minutesUntil はuntilまでの残り時間を分単位で切り上げて返す。
func minutesUntil(until, now time.Time) int {
	d := until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
