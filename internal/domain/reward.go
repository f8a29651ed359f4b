package domain

import "time"

// RewardLedgerEntry records a single referral reward. It is keyed by the
// referred user's id, which enforces at most one reward per referred user.
type RewardLedgerEntry struct {
	SubjectUserID  string
	ReferrerUserID string
	Amount         int64
	CreatedAt      time.Time
}
