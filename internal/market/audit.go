package market

// AuditReport compares the incrementally maintained open-interest
// aggregates against a full-scan recompute.
type AuditReport struct {
	TrackedLongSize  int64
	TrackedShortSize int64
	ScannedLongSize  int64
	ScannedShortSize int64
	PositionCount    int
}

// Consistent reports whether the tracked aggregates match the scan.
func (r AuditReport) Consistent() bool {
	return r.TrackedLongSize == r.ScannedLongSize &&
		r.TrackedShortSize == r.ScannedShortSize
}

// AuditAggregates recomputes open interest from a full position scan.
// The steady state never needs this; it exists to detect drift offline.
func (e *Engine) AuditAggregates() AuditReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := AuditReport{
		TrackedLongSize:  e.totalLongSize,
		TrackedShortSize: e.totalShortSize,
		PositionCount:    len(e.positions),
	}
	for _, p := range e.positions {
		if p.Direction == Long {
			r.ScannedLongSize += p.Size
		} else {
			r.ScannedShortSize += p.Size
		}
	}
	if !r.Consistent() {
		e.log.Error().
			Int64("tracked_long", r.TrackedLongSize).
			Int64("scanned_long", r.ScannedLongSize).
			Int64("tracked_short", r.TrackedShortSize).
			Int64("scanned_short", r.ScannedShortSize).
			Msg("aggregate open interest drift detected")
	}
	return r
}
