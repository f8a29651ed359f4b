package referral

import "github.com/nkorotkov/refbot/internal/domain"

// Outcome describes the result of processing a referral for one user.
type Outcome string

const (
	OutcomeRewarded        Outcome = "rewarded"
	OutcomeAlreadyRewarded Outcome = "already_rewarded"
	OutcomeNoReferrer      Outcome = "no_referrer"
	OutcomeSelfReferral    Outcome = "self_referral"
	OutcomeSubjectMissing  Outcome = "subject_missing"
)

// DefaultRewardAmount is the fixed number of coins credited to a referrer
// per referred user. Never taken from user input.
const DefaultRewardAmount int64 = 500

// effectiveReferrer resolves the referrer for a subject from its stored
// attribution and the token carried by the current event. A stored value
// always wins over the token; a token equal to the subject id is ignored.
func effectiveReferrer(subjectID string, subject *domain.UserRecord, token string) string {
	if subject.ReferredBy != "" {
		return subject.ReferredBy
	}

	if token != "" && token != subjectID {
		return token
	}

	return ""
}

// writeSet holds the records a successful reward transaction must commit
// together: the subject with attribution and reward flag set, the referrer
// with the credit applied, and the ledger entry.
type writeSet struct {
	Subject  *domain.UserRecord
	Referrer *domain.UserRecord
	Entry    *domain.RewardLedgerEntry
}

// buildWrites produces the write set for rewarding referrer for having
// invited subject. Operates on copies of the snapshots; referredBy is only
// assigned when previously unset.
func buildWrites(subject, referrer *domain.UserRecord, amount int64) writeSet {
	s := subject.Clone()
	if s.ReferredBy == "" {
		s.ReferredBy = referrer.ID
	}
	s.RewardGiven = true

	r := referrer.Clone()
	r.Coins += amount
	r.ReferralCount++

	return writeSet{
		Subject:  s,
		Referrer: r,
		Entry: &domain.RewardLedgerEntry{
			SubjectUserID:  s.ID,
			ReferrerUserID: r.ID,
			Amount:         amount,
		},
	}
}
