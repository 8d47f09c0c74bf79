// Package memory holds in-process implementations of the persistence ports.
// They back the service tests and the STORE_DRIVER=memory development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// Store keeps tickets, audit entries, timers and rosters in maps guarded by
// one mutex. A transaction holds the mutex for its whole duration.
type Store struct {
	mu      sync.Mutex
	seq     int64
	tickets map[uuid.UUID]*domain.Ticket
	audit   []*domain.AuditEntry
	timers  map[uuid.UUID]*domain.TimerRecord
	roster  map[string][]domain.Assignee
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tickets: make(map[uuid.UUID]*domain.Ticket),
		timers:  make(map[uuid.UUID]*domain.TimerRecord),
		roster:  make(map[string][]domain.Assignee),
	}
}

type txKey struct{}

// lock takes the mutex unless ctx is already inside a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	seq     int64
	tickets map[uuid.UUID]*domain.Ticket
	audit   []*domain.AuditEntry
	timers  map[uuid.UUID]*domain.TimerRecord
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		seq:     s.seq,
		tickets: make(map[uuid.UUID]*domain.Ticket, len(s.tickets)),
		audit:   append([]*domain.AuditEntry(nil), s.audit...),
		timers:  make(map[uuid.UUID]*domain.TimerRecord, len(s.timers)),
	}
	for id, t := range s.tickets {
		snap.tickets[id] = t.Clone()
	}
	for id, t := range s.timers {
		c := *t
		snap.timers[id] = &c
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.seq = snap.seq
	s.tickets = snap.tickets
	s.audit = snap.audit
	s.timers = snap.timers
}

// WithTransaction runs fn atomically: on error every change fn made is
// discarded.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Tickets returns the ticket repository view of the store.
func (s *Store) Tickets() ports.TicketRepository { return (*ticketRepo)(s) }

// Audit returns the audit repository view of the store.
func (s *Store) Audit() ports.AuditRepository { return (*auditRepo)(s) }

// Timers returns the timer repository view of the store.
func (s *Store) Timers() ports.TimerRepository { return (*timerRepo)(s) }

// Directory returns the roster view of the store.
func (s *Store) Directory() ports.Roster { return (*directory)(s) }

var _ ports.TransactionManager = (*Store)(nil)

type ticketRepo Store

func (r *ticketRepo) Create(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	if _, exists := s.tickets[t.ID]; exists {
		return nil, fmt.Errorf("ticket %s already exists", t.ID)
	}
	s.seq++
	stored := t.Clone()
	stored.TicketNumber = fmt.Sprintf("TKT-%06d", s.seq)
	stored.Version = 1
	s.tickets[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	t, ok := s.tickets[id]
	if !ok || t.DeletedAt != nil {
		return nil, apperrors.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (r *ticketRepo) Update(ctx context.Context, t *domain.Ticket, expectedVersion int64) (*domain.Ticket, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	current, ok := s.tickets[t.ID]
	if !ok || current.DeletedAt != nil {
		return nil, apperrors.ErrTicketNotFound
	}
	if current.Version != expectedVersion {
		return nil, apperrors.NewRuleError(apperrors.ErrConcurrencyConflict,
			"ticket was modified concurrently: expected version %d, found %d", expectedVersion, current.Version)
	}

	stored := t.Clone()
	stored.TicketNumber = current.TicketNumber
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	s.tickets[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *ticketRepo) List(ctx context.Context, f ports.TicketFilter) ([]*domain.Ticket, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	var out []*domain.Ticket
	for _, t := range s.tickets {
		if t.DeletedAt == nil && matches(t, f) {
			out = append(out, t.Clone())
		}
	}

	var sla domain.SLATracker
	sort.Slice(out, func(i, j int) bool {
		if f.SortByDueDate {
			di, iok := sla.EffectiveDueDate(out[i])
			dj, jok := sla.EffectiveDueDate(out[j])
			switch {
			case iok && !jok:
				return true
			case !iok && jok:
				return false
			case iok && jok && !di.Equal(dj):
				return di.Before(dj)
			}
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TicketNumber > out[j].TicketNumber
	})

	if f.Offset >= len(out) {
		return []*domain.Ticket{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(t *domain.Ticket, f ports.TicketFilter) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.ReopenedOnly && t.ReopenCount == 0 {
		return false
	}
	if f.Department != nil && !domain.SameDepartment(t.Department, *f.Department) {
		return false
	}
	if f.RequesterID != nil && t.RequesterID != *f.RequesterID {
		return false
	}
	if f.AssigneeID != nil && !t.IsAssignedTo(*f.AssigneeID) {
		return false
	}
	if f.ParentTicketID != nil && (t.ParentTicketID == nil || *t.ParentTicketID != *f.ParentTicketID) {
		return false
	}
	if v := f.Visibility; v != nil {
		visible := t.IsOwnedBy(v.UserID) || t.IsAssignedTo(v.UserID) ||
			(v.Department != "" && t.Department != "" && domain.SameDepartment(t.Department, v.Department))
		if !visible {
			return false
		}
	}
	return true
}

type auditRepo Store

func (r *auditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	s := (*Store)(r)
	defer s.lock(ctx)()

	c := *e
	s.audit = append(s.audit, &c)
	return nil
}

func (r *auditRepo) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]*domain.AuditEntry, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	out := make([]*domain.AuditEntry, 0)
	// Appended order is chronological; walk it backwards.
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].TicketID == ticketID {
			c := *s.audit[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

type timerRepo Store

func (r *timerRepo) Schedule(ctx context.Context, t *domain.TimerRecord) error {
	s := (*Store)(r)
	defer s.lock(ctx)()

	for _, existing := range s.timers {
		if existing.Active && existing.TicketID == t.TicketID && existing.Kind == t.Kind {
			existing.Active = false
		}
	}
	c := *t
	c.Active = true
	s.timers[c.ID] = &c
	return nil
}

func (r *timerRepo) GetActive(ctx context.Context, ticketID uuid.UUID, kind domain.TimerKind) (*domain.TimerRecord, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	for _, t := range s.timers {
		if t.Active && t.TicketID == ticketID && t.Kind == kind {
			c := *t
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *timerRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	s := (*Store)(r)
	defer s.lock(ctx)()

	if t, ok := s.timers[id]; ok {
		t.Active = false
	}
	return nil
}

func (r *timerRepo) CancelActive(ctx context.Context, ticketID uuid.UUID, kind domain.TimerKind) error {
	s := (*Store)(r)
	defer s.lock(ctx)()

	for _, t := range s.timers {
		if t.Active && t.TicketID == ticketID && t.Kind == kind {
			t.Active = false
		}
	}
	return nil
}

func (r *timerRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.TimerRecord, error) {
	s := (*Store)(r)
	defer s.lock(ctx)()

	var due []*domain.TimerRecord
	for _, t := range s.timers {
		if t.Active && !now.Before(t.Deadline) {
			c := *t
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

type directory Store

// AddMember puts a user on a department roster.
func (s *Store) AddMember(department string, a domain.Assignee) {
	_ = s.Directory().UpsertMember(context.Background(), department, a)
}

func (d *directory) UpsertMember(ctx context.Context, department string, a domain.Assignee) error {
	s := (*Store)(d)
	defer s.lock(ctx)()

	key := strings.ToLower(strings.TrimSpace(department))
	a.Department = strings.TrimSpace(department)
	for i, existing := range s.roster[key] {
		if existing.ID == a.ID {
			s.roster[key][i] = a
			return nil
		}
	}
	s.roster[key] = append(s.roster[key], a)
	return nil
}

func (d *directory) AssigneesOf(ctx context.Context, department string) ([]domain.Assignee, error) {
	s := (*Store)(d)
	defer s.lock(ctx)()

	members := s.roster[strings.ToLower(strings.TrimSpace(department))]
	return append([]domain.Assignee{}, members...), nil
}
