package models

import "time"

// BehaviorSessionSummary is the terminal summary computed once when a
// BehaviorSession ends.
type BehaviorSessionSummary struct {
	ActivitySummary   ActivitySummary   `json:"activity_summary"`
	BehavioralMetrics BehavioralMetrics `json:"behavioral_metrics"`
	Incomplete        bool              `json:"incomplete"` // set if End was called with an already-done ctx
}

// ActivitySummary tallies raw event counts within a session.
type ActivitySummary struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
}

// BehavioralMetrics holds the derived, session-level behavioral signals.
type BehavioralMetrics struct {
	TaskSwitchRate   float64 `json:"task_switch_rate"`
	AvgTypingBurstMs float64 `json:"avg_typing_burst_ms"`
	AvgTapIntervalMs float64 `json:"avg_tap_interval_ms"`
}

// BehaviorSession is an ordered sequence of BehaviorEvent tied to one
// sessionId (a UUID v4). Summary is computed once at End and cached;
// calling End again returns the cached summary, idempotently.
type BehaviorSession struct {
	SessionID string          `json:"session_id"`
	StartTs   time.Time       `json:"start_ts"`
	EndTs     *time.Time      `json:"end_ts,omitempty"`
	Events    []BehaviorEvent `json:"events"`
	Summary   *BehaviorSessionSummary `json:"summary,omitempty"`
}

// Ended reports whether End has already been called.
func (s *BehaviorSession) Ended() bool { return s.EndTs != nil }
