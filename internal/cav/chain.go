package cav

import "fmt"

// ChainError reports the first event whose hash link does not verify.
type ChainError struct {
	EventID string
	Reason  string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at event %s: %s", e.EventID, e.Reason)
}

func (e *ChainError) Is(target error) bool { return target == ErrIntegrity }

// VerifyChain walks the retained events from oldest to newest and checks each
// hash and link. The oldest retained event's PrevHash is trusted as is, since
// its predecessor may have been evicted. It returns the number of events
// verified before the first break.
func (l *AuditLog) VerifyChain() (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verifyChain(l.events)
}

func verifyChain(events []AuditEvent) (int, error) {
	verified := 0
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if i < len(events)-1 && e.PrevHash != events[i+1].Hash {
			return verified, &ChainError{EventID: e.ID, Reason: "previous hash does not match predecessor"}
		}
		if want := computeEventHash(e.PrevHash, e); e.Hash != want {
			return verified, &ChainError{EventID: e.ID, Reason: "event hash does not match contents"}
		}
		verified++
	}
	return verified, nil
}
