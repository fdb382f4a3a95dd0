// Package session owns everything one signed-in user works against: the store backend,
// the event bus, the task repository, the notification fanout, the event journal and
// the drag manager.
// It is built by Open and torn down by Close (sign-out).
package session

import (
	"context"
	"strings"
	"sync"

	"tasksync/internal/drag"
	"tasksync/internal/events"
	"tasksync/internal/journal"
	"tasksync/internal/logging"
	"tasksync/internal/notify"
	"tasksync/internal/repo"
	"tasksync/internal/store"
	"tasksync/internal/taskerr"
)

type Options struct {
	User string

	// Backend, when set, is used as is and left open by Close.
	Backend store.Backend
	// BackendName and DBPath select a backend through store.Open when Backend is nil.
	BackendName string
	DBPath      string

	Logger *logging.Logger
}

type Session struct {
	User    string
	Bus     *events.Bus
	Repo    *repo.Repository
	Fanout  *notify.Fanout
	Journal *journal.Journal
	Drag    *drag.Manager

	backend    store.Backend
	ownBackend bool
	log        *logging.Logger
	closeOnce  sync.Once
}

// Open wires a session and fills the cache from the backend.
func Open(ctx context.Context, opts Options) (*Session, error) {
	user := strings.TrimSpace(opts.User)
	if user == "" {
		return nil, taskerr.InvalidArgument("user is required (set --user, TASKSYNC_USER or config currentUser)")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	backend, own := opts.Backend, false
	if backend == nil {
		b, err := store.Open(ctx, opts.BackendName, opts.DBPath)
		if err != nil {
			return nil, err
		}
		backend, own = b, true
	}

	bus := events.NewBus()
	r := repo.New(backend, repo.Options{Bus: bus, Logger: log})
	f := notify.New(backend, bus, log)
	f.Start()
	j := journal.New(backend, bus, user, log)
	j.Start()

	s := &Session{
		User:       user,
		Bus:        bus,
		Repo:       r,
		Fanout:     f,
		Journal:    j,
		Drag:       drag.NewManager(r, user, log),
		backend:    backend,
		ownBackend: own,
		log:        log,
	}
	if _, err := r.Load(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Debugf("session open for %s (%d tasks)", user, len(r.Tasks()))
	return s, nil
}

// Close drains pending notifications and journal entries, drops the cache and closes an owned backend.
// Calling it again is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Fanout.Close()
		s.Journal.Close()
		s.Repo.Close()
		if s.ownBackend {
			err = s.backend.Close()
		}
		s.log.Debugf("session closed for %s", s.User)
	})
	return err
}
