package domain

import "time"

// PublishRequest is the inbound payload for a publish call. It is validated
// and dispatched, never persisted here; draft/history persistence belongs to
// the CRUD layer upstream.
type PublishRequest struct {
	Content  string   `json:"content" binding:"required"`
	Platform string   `json:"platform" binding:"required"`
	Hashtags []string `json:"hashtags"`
}

// PublishError is the failure half of a publish result.
type PublishError struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// PublishResult reports the outcome of one publish call. For threads,
// PostIDs holds the ids of every segment that made it out in order; on
// partial failure Success is false but PostIDs still lists what was
// published, since segments are never rolled back.
type PublishResult struct {
	Success bool          `json:"success"`
	PostID  string        `json:"post_id,omitempty"`
	PostIDs []string      `json:"post_ids,omitempty"`
	Error   *PublishError `json:"error,omitempty"`
}

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}
