package queue

import (
	"time"

	"agentd/pkg/types"
)

// Priority score constants for the hybrid strategy. The age bonus caps at
// 30 so an old low-tier request can never outrank a fresh VIP request.
const (
	tierBonusVIP     = 100.0
	tierBonusPremium = 50.0
	taskBonusSkill   = 50.0
	ageBonusCap      = 30.0
)

// ScoreStrategy computes a request's priority score at (re)submission
// time. Higher scores dequeue first.
type ScoreStrategy interface {
	Score(req *Request, now time.Time) float64
}

// HybridStrategy is the default: tier bonus + task-type bonus + capped
// age bonus. Lightweight skill tasks are preferred over agent tasks to
// keep median latency low.
type HybridStrategy struct{}

func (HybridStrategy) Score(req *Request, now time.Time) float64 {
	score := 0.0
	switch req.Tier {
	case types.TierVIP:
		score += tierBonusVIP
	case types.TierPremium:
		score += tierBonusPremium
	}
	if req.TaskType == types.TaskSkill {
		score += taskBonusSkill
	}
	age := now.Sub(req.QueuedAt).Seconds() / 60
	if age < 0 {
		age = 0
	}
	if age > ageBonusCap {
		age = ageBonusCap
	}
	return score + age
}

// FIFOStrategy ignores request attributes entirely; ordering degrades to
// pure submission order.
type FIFOStrategy struct{}

func (FIFOStrategy) Score(*Request, time.Time) float64 { return 0 }
