package domain

// DateRange is a half-open interval [Start, End): the vehicle is handed back
// on the End day, so a range ending on a day and another starting on that same
// day do not collide.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Valid reports whether End is strictly after Start.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.End.After(r.Start)
}

// Overlaps applies the half-open interval test: [s1,e1) and [s2,e2) overlap
// iff s1 < e2 AND e1 > s2. Ranges that merely touch at an endpoint do not
// overlap.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

// Days returns the length of the range in days.
func (r DateRange) Days() int {
	return int(r.End.Time().Sub(r.Start.Time()).Hours() / 24)
}

// FindConflict scans a vehicle's reservations for the first active one whose
// range overlaps the candidate. excludeID removes the reservation being
// edited from the comparison set; pass 0 when creating. The result may be
// stale the moment it returns; callers that write must re-check inside the
// store's transaction.
func FindConflict(candidate DateRange, existing []*Reservation, excludeID int64) *Reservation {
	for _, res := range existing {
		if res.ID == excludeID {
			continue
		}
		if !res.Status.Active() {
			continue
		}
		if candidate.Overlaps(res.Period) {
			return res
		}
	}
	return nil
}
