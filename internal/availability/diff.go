package availability

// Diff compares a new snapshot against the previous one and returns the
// transitions worth notifying: slots that went full to available,
// including slots appearing for the first time as available.
//
// A nil previous snapshot means this is the first run ever; no
// transitions are emitted so a cold start establishes a baseline
// silently instead of alerting on every open slot.
//
// Only the full-to-available direction is emitted. The reverse
// transition is visible in snapshot history but is not actionable for
// subscribers. Results are ordered by slot ID ascending, and the same
// input pair always yields the same sequence.
func Diff(prev, curr *Snapshot) []Transition {
	if prev == nil || curr == nil {
		return nil
	}

	prevByID := make(map[string]Record, len(prev.Records))
	for _, r := range prev.Records {
		prevByID[r.SlotID] = r
	}

	var transitions []Transition
	for _, r := range curr.Records { // already ordered by slot ID
		if r.Status != StatusAvailable {
			continue
		}

		// A slot absent from the previous snapshot counts as having
		// been full: a brand-new open slot is itself a transition.
		prevStatus := StatusFull
		if p, ok := prevByID[r.SlotID]; ok {
			prevStatus = p.Status
		}
		if prevStatus == StatusAvailable {
			continue
		}

		transitions = append(transitions, Transition{
			SlotID:         r.SlotID,
			PreviousStatus: prevStatus,
			NewStatus:      StatusAvailable,
			ObservedAt:     curr.TakenAt,
			SnapshotID:     curr.ID,
			Record:         r,
		})
	}
	return transitions
}
