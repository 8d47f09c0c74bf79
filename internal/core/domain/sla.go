package domain

import (
	"time"
)

// SLAPolicy maps a priority to its resolution budget in hours.
type SLAPolicy map[TicketPriority]int

// DefaultSLAPolicy is applied when a moderator sets a priority without an
// explicit SLA.
var DefaultSLAPolicy = SLAPolicy{
	PriorityUrgent: 8,
	PriorityHigh:   24,
	PriorityMedium: 48,
	PriorityLow:    72,
}

// HoursFor returns the budget for the priority, falling back to the default.
func (p SLAPolicy) HoursFor(priority TicketPriority) int {
	if h, ok := p[priority]; ok && h > 0 {
		return h
	}
	return DefaultSLAHours
}

// ApproachingThresholdPercent is the remaining share below which a ticket is
// flagged as approaching its deadline.
const ApproachingThresholdPercent = 25.0

var slaSuppressed = map[TicketStatus]bool{
	StatusDraft:     true,
	StatusCompleted: true,
	StatusResolved:  true,
	StatusClosed:    true,
	StatusRejected:  true,
}

// SLAStatus is the evaluation of one ticket at one instant.
type SLAStatus struct {
	Applicable         bool
	DueDate            time.Time
	RemainingOrOverdue time.Duration
	Percentage         float64
	Breached           bool
	Approaching        bool
}

// SLATracker computes due dates and deadline health. It holds no state.
type SLATracker struct{}

// EffectiveDueDate is the override when set, otherwise submission plus the
// SLA budget. The second result is false when the ticket has not been
// submitted.
func (SLATracker) EffectiveDueDate(t *Ticket) (time.Time, bool) {
	if t.DueDateOverride != nil {
		return t.DueDateOverride.UTC(), true
	}
	if t.SubmittedDate == nil {
		return time.Time{}, false
	}
	hours := t.SLAHours
	if hours <= 0 {
		hours = DefaultSLAHours
	}
	return t.SubmittedDate.UTC().Add(time.Duration(hours) * time.Hour), true
}

// Evaluate reports how much of the SLA window is left at now.
func (s SLATracker) Evaluate(t *Ticket, now time.Time) SLAStatus {
	if slaSuppressed[t.Status] || t.SubmittedDate == nil {
		return SLAStatus{}
	}
	due, ok := s.EffectiveDueDate(t)
	if !ok {
		return SLAStatus{}
	}

	remaining := due.Sub(now)
	window := due.Sub(*t.SubmittedDate)

	var pct float64
	switch {
	case window <= 0:
		if remaining > 0 {
			pct = 100
		}
	default:
		pct = float64(remaining) / float64(window) * 100
	}
	pct = clamp(pct, 0, 100)

	breached := remaining <= 0
	return SLAStatus{
		Applicable:         true,
		DueDate:            due,
		RemainingOrOverdue: remaining,
		Percentage:         pct,
		Breached:           breached,
		Approaching:        !breached && pct < ApproachingThresholdPercent,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
