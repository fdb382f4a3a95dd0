// Package drag turns a board drag gesture into at most one status mutation.
//
// A Session moves Idle, Dragging, then Committing or Cancelled; a commit always ends back
// in Idle whatever the mutation's outcome. Card order inside a column is display state
// only: the Manager keeps it in memory and never persists it.
package drag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tasksync/internal/logging"
	"tasksync/internal/model"
	"tasksync/internal/statusutil"
	"tasksync/internal/taskerr"
)

// Repository is the slice of repo.Repository the manager needs.
type Repository interface {
	Get(id string) (model.Task, bool)
	Tasks() []model.Task
	Mutate(ctx context.Context, id string, patch model.Patch, actingUser string) (model.Task, error)
}

type State int

const (
	StateIdle State = iota
	StateDragging
	StateCommitting
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateCommitting:
		return "committing"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type OutcomeKind string

const (
	OutcomeCancelled  OutcomeKind = "cancelled"
	OutcomeReordered  OutcomeKind = "reordered"
	OutcomeMoved      OutcomeKind = "moved"
	OutcomeRolledBack OutcomeKind = "rolled-back"
)

type Outcome struct {
	Kind OutcomeKind
	// Task is the repository's copy after the drop (the rolled-back copy on failure).
	Task model.Task
}

type Manager struct {
	repo  Repository
	actor string
	log   *logging.Logger

	mu    sync.Mutex
	order map[model.Status][]string
}

func NewManager(r Repository, actingUser string, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		repo:  r,
		actor: strings.TrimSpace(actingUser),
		log:   log,
		order: map[model.Status][]string{},
	}
}

// PickUp starts a drag of taskID from (sourceStatus, sourceIndex).
func (m *Manager) PickUp(taskID string, sourceStatus model.Status, sourceIndex int) (*Session, error) {
	taskID = strings.TrimSpace(taskID)
	if _, ok := m.repo.Get(taskID); !ok {
		return nil, taskerr.NotFoundError{Kind: "task", ID: taskID}
	}
	if !statusutil.ValidStatus(sourceStatus) {
		return nil, taskerr.InvalidArgument("unknown status %q", sourceStatus)
	}
	if sourceIndex < 0 {
		sourceIndex = 0
	}
	return &Session{
		m:            m,
		state:        StateDragging,
		taskID:       taskID,
		sourceStatus: sourceStatus,
		sourceIndex:  sourceIndex,
	}, nil
}

// Column returns the tasks currently in status, in display order.
func (m *Manager) Column(status model.Status) []model.Task {
	var col []model.Task
	for _, t := range m.repo.Tasks() {
		if t.Status == status {
			col = append(col, t)
		}
	}
	return m.Arrange(status, col)
}

// Arrange orders tasks (all of one status) by the column's display order. Tasks the
// manager has never placed keep their relative input order after the placed ones.
func (m *Manager) Arrange(status model.Status, tasks []model.Task) []model.Task {
	m.mu.Lock()
	ids := m.order[status]
	m.mu.Unlock()

	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	placed := make([]model.Task, 0, len(tasks))
	var rest []model.Task
	for _, t := range tasks {
		if _, ok := pos[t.ID]; ok {
			placed = append(placed, t)
		} else {
			rest = append(rest, t)
		}
	}
	sortByPos(placed, pos)
	return append(placed, rest...)
}

func sortByPos(ts []model.Task, pos map[string]int) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && pos[ts[j].ID] < pos[ts[j-1].ID]; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// place puts taskID at index in status's display order, removing it from every other
// column's order. undo removes it again and puts it back in the slot it held before.
func (m *Manager) place(taskID string, status model.Status, index int) (undo func()) {
	current := m.Column(status)
	ids := make([]string, 0, len(current)+1)
	for _, t := range current {
		if t.ID != taskID {
			ids = append(ids, t.ID)
		}
	}
	if index > len(ids) {
		index = len(ids)
	}
	ids = insertAt(ids, index, taskID)

	type slot struct {
		status model.Status
		index  int
	}
	var was []slot

	m.mu.Lock()
	defer m.mu.Unlock()
	for s, o := range m.order {
		if s == status {
			continue
		}
		if i := indexOf(o, taskID); i >= 0 {
			was = append(was, slot{s, i})
		}
		m.order[s] = without(o, taskID)
	}
	m.order[status] = ids

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.order[status] = without(m.order[status], taskID)
		for _, w := range was {
			o := without(m.order[w.status], taskID)
			i := w.index
			if i > len(o) {
				i = len(o)
			}
			m.order[w.status] = insertAt(o, i, taskID)
		}
	}
}

func insertAt(ids []string, i int, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Session is one drag gesture. Its methods are safe to call from any goroutine.
type Session struct {
	m *Manager

	mu           sync.Mutex
	state        State
	taskID       string
	sourceStatus model.Status
	sourceIndex  int

	hasTarget  bool
	destStatus model.Status
	destIndex  int
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) TaskID() string { return s.taskID }

// Target reports the candidate drop position, if the pointer is over a column.
func (s *Session) Target() (model.Status, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destStatus, s.destIndex, s.hasTarget
}

// Over records the pointer being over column status at index. Nothing is mutated.
func (s *Session) Over(status model.Status, index int) error {
	if !statusutil.ValidStatus(status) {
		return taskerr.InvalidArgument("unknown status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDragging {
		return taskerr.InvalidArgument("drag of %s is %s, not dragging", s.taskID, s.state)
	}
	if index < 0 {
		index = 0
	}
	s.hasTarget, s.destStatus, s.destIndex = true, status, index
	return nil
}

// Leave records the pointer leaving every column; a drop now cancels.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDragging {
		s.hasTarget = false
	}
}

func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDragging {
		s.state = StateCancelled
	}
}

// Drop ends the gesture. Outside any column, or back at the source slot, the session
// is cancelled and the repository is not called. A drop in the source column only
// reorders. A drop in another column issues exactly one status mutation; on failure
// the error is the repository's SyncFailed and the outcome is rolled-back.
func (s *Session) Drop(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.state != StateDragging {
		st := s.state
		s.mu.Unlock()
		return Outcome{}, taskerr.InvalidArgument("drag of %s is %s, not dragging", s.taskID, st)
	}
	if !s.hasTarget || (s.destStatus == s.sourceStatus && s.destIndex == s.sourceIndex) {
		s.state = StateCancelled
		s.mu.Unlock()
		t, _ := s.m.repo.Get(s.taskID)
		return Outcome{Kind: OutcomeCancelled, Task: t}, nil
	}
	s.state = StateCommitting
	dest, index := s.destStatus, s.destIndex
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	if dest == s.sourceStatus {
		s.m.place(s.taskID, dest, index)
		t, _ := s.m.repo.Get(s.taskID)
		return Outcome{Kind: OutcomeReordered, Task: t}, nil
	}

	// Placed before the mutation so the optimistic render already shows the card in
	// its drop slot.
	undo := s.m.place(s.taskID, dest, index)
	t, err := s.m.repo.Mutate(ctx, s.taskID, model.Patch{Status: &dest}, s.m.actor)
	if err != nil {
		undo()
		s.m.log.Infof("drag %s %s->%s: %v", s.taskID, s.sourceStatus, dest, err)
		cur, _ := s.m.repo.Get(s.taskID)
		if !errors.Is(err, taskerr.ErrSyncFailed) {
			// Rejected before anything was applied.
			return Outcome{Kind: OutcomeCancelled, Task: cur}, err
		}
		return Outcome{Kind: OutcomeRolledBack, Task: cur}, err
	}
	return Outcome{Kind: OutcomeMoved, Task: t}, nil
}
