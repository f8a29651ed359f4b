package domain

import "time"

// UserRecord represents an application user stored in the record store,
// keyed by their platform user identifier.
type UserRecord struct {
	ID               string
	DisplayName      string
	PhotoURL         string
	FrontendOpened   bool
	Coins            int64
	ReferralCount    int64
	ReferredBy       string
	RewardGiven      bool
	TasksCompleted   int64
	TotalWithdrawals int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy of the record. Snapshots handed out by the
// store must not alias its internal state.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}

	cp := *u
	return &cp
}
