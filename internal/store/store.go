// Package store holds the authoritative in-memory collection of jobs plus
// scheduler configuration and derived statistics. It is a synchronized data
// container: all concurrency policy lives in the scheduler.
package store

import (
	"sync"

	"github.com/rs/zerolog"

	"asset-studio/internal/domain"
	"asset-studio/internal/domain/model"
)

// DefaultMaxConcurrent is the concurrency bound a fresh store starts with.
const DefaultMaxConcurrent = 3

type EventKind string

const (
	EventJobAdded      EventKind = "job-added"
	EventJobUpdated    EventKind = "job-updated"
	EventJobRemoved    EventKind = "job-removed"
	EventJobsCleared   EventKind = "jobs-cleared"
	EventStatsUpdated  EventKind = "stats-updated"
	EventConfigUpdated EventKind = "config-updated"
)

// Event is delivered to subscribers. Job is a deep copy and is set for the
// job-* kinds (the last snapshot for job-removed). Stats reflect the store
// immediately after the mutation that produced the event.
type Event struct {
	Kind          EventKind   `json:"kind"`
	Job           *model.Job  `json:"job,omitempty"`
	Stats         model.Stats `json:"stats"`
	MaxConcurrent int         `json:"max_concurrent"`
}

type Callback func(Event)

// Subscription identifies a registered callback so it can be removed.
type Subscription struct {
	kind EventKind
	id   uint64
}

type subscriber struct {
	id uint64
	fn Callback
}

// State is an immutable-snapshot view of the store. Jobs are deep copies in
// creation (FIFO) order; mutating them has no effect on the store.
type State struct {
	Jobs          []*model.Job `json:"jobs"`
	Stats         model.Stats  `json:"stats"`
	MaxConcurrent int          `json:"max_concurrent"`
}

type Store struct {
	mu            sync.RWMutex
	jobs          map[string]*model.Job
	order         []string // creation order; a job keeps its slot for its whole lifetime
	maxConcurrent int
	stats         model.Stats

	subMu  sync.Mutex
	subs   map[EventKind][]subscriber
	nextID uint64

	log *zerolog.Logger
}

// New constructs an empty store. There is no package-level instance; whoever
// creates the scheduler owns the store and passes it by reference.
func New(logger *zerolog.Logger) *Store {
	return &Store{
		jobs:          make(map[string]*model.Job),
		maxConcurrent: DefaultMaxConcurrent,
		subs:          make(map[EventKind][]subscriber),
		log:           logger,
	}
}

// AddJob inserts a new job and notifies job-added and stats-updated.
func (s *Store) AddJob(job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	if _, ok := s.jobs[job.ID]; ok {
		s.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	cp := job.Clone()
	s.jobs[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	s.recomputeStats()
	snap, stats, max := cp.Clone(), s.stats, s.maxConcurrent
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventJobAdded, Job: snap, Stats: stats, MaxConcurrent: max})
	s.dispatch(Event{Kind: EventStatsUpdated, Stats: stats, MaxConcurrent: max})
	return nil
}

// UpdateJob applies a partial change to an existing job under the store lock.
// An unknown id is a logged no-op so stale references from a UI that has not
// re-synced cannot break the caller.
func (s *Store) UpdateJob(id string, apply func(*model.Job)) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		s.log.Warn().Str("job_id", id).Msg("update for unknown job ignored")
		return
	}
	apply(job)
	s.recomputeStats()
	snap, stats, max := job.Clone(), s.stats, s.maxConcurrent
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventJobUpdated, Job: snap, Stats: stats, MaxConcurrent: max})
	s.dispatch(Event{Kind: EventStatsUpdated, Stats: stats, MaxConcurrent: max})
}

// RemoveJob deletes a job and returns its last snapshot, or nil if the id is
// unknown. Removing a running job only deletes the record; cancelling the
// in-flight call is the scheduler's business.
func (s *Store) RemoveJob(id string) *model.Job {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		s.log.Warn().Str("job_id", id).Msg("remove for unknown job ignored")
		return nil
	}
	delete(s.jobs, id)
	for i, jid := range s.order {
		if jid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.recomputeStats()
	snap, stats, max := job.Clone(), s.stats, s.maxConcurrent
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventJobRemoved, Job: snap, Stats: stats, MaxConcurrent: max})
	s.dispatch(Event{Kind: EventStatsUpdated, Stats: stats, MaxConcurrent: max})
	return snap
}

// ClearAll removes every job and returns their last snapshots in creation
// order.
func (s *Store) ClearAll() []*model.Job {
	s.mu.Lock()
	removed := make([]*model.Job, 0, len(s.order))
	for _, id := range s.order {
		removed = append(removed, s.jobs[id].Clone())
	}
	s.jobs = make(map[string]*model.Job)
	s.order = nil
	s.recomputeStats()
	stats, max := s.stats, s.maxConcurrent
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventJobsCleared, Stats: stats, MaxConcurrent: max})
	s.dispatch(Event{Kind: EventStatsUpdated, Stats: stats, MaxConcurrent: max})
	return removed
}

// Job returns a deep copy of the job with the given id.
func (s *Store) Job(id string) (*model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// JobsByStatus returns deep copies of all jobs with the given status, in
// creation order.
func (s *Store) JobsByStatus(status model.JobStatus) []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Job
	for _, id := range s.order {
		if j := s.jobs[id]; j.Status == status {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Snapshot returns a consistent view of all jobs, statistics and config.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*model.Job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id].Clone())
	}
	return State{Jobs: jobs, Stats: s.stats, MaxConcurrent: s.maxConcurrent}
}

// Stats returns the current derived statistics.
func (s *Store) Stats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// SetMaxConcurrent changes the concurrency bound and notifies config-updated.
// Zero is legal and admits nothing; negative values are rejected.
func (s *Store) SetMaxConcurrent(n int) error {
	if n < 0 {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	s.maxConcurrent = n
	stats := s.stats
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventConfigUpdated, Stats: stats, MaxConcurrent: n})
	return nil
}

func (s *Store) MaxConcurrent() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxConcurrent
}

// Subscribe registers a callback for one event kind. Callbacks for a kind run
// synchronously in registration order, after the mutation has been applied
// but outside the store lock, so a subscriber may call back into the store.
func (s *Store) Subscribe(kind EventKind, fn Callback) Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	sub := Subscription{kind: kind, id: s.nextID}
	s.subs[kind] = append(s.subs[kind], subscriber{id: sub.id, fn: fn})
	return sub
}

func (s *Store) Unsubscribe(sub Subscription) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	list := s.subs[sub.kind]
	for i, sb := range list {
		if sb.id == sub.id {
			s.subs[sub.kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.subs[sub.kind]) == 0 {
		delete(s.subs, sub.kind)
	}
}

// recomputeStats must be called with mu held after every mutation so that a
// subscriber reacting to a job event always sees consistent statistics.
func (s *Store) recomputeStats() {
	st := model.Stats{Total: len(s.jobs)}
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobStatusIdle:
			st.Idle++
		case model.JobStatusRunning:
			st.Running++
		case model.JobStatusSuccess:
			st.Success++
		case model.JobStatusError:
			st.Error++
		}
	}
	s.stats = st
}

// dispatch invokes subscribers synchronously. A panicking subscriber is
// swallowed and logged: a rendering failure must not break the scheduler.
func (s *Store) dispatch(ev Event) {
	s.subMu.Lock()
	subs := append([]subscriber(nil), s.subs[ev.Kind]...)
	s.subMu.Unlock()

	for _, sb := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Str("event", string(ev.Kind)).
						Interface("panic", r).
						Msg("subscriber panicked")
				}
			}()
			sb.fn(ev)
		}()
	}
}
