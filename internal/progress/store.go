package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	sessionPrefix = "redemption:"

	// DefaultTTL bounds how long an idle redemption stays resumable.
	DefaultTTL = 24 * time.Hour

	maxUpdateAttempts = 8
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("redemption session not found")

// Store keeps redemption sessions in Badger. Every write refreshes the TTL.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Open opens a Badger database at path.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Sessions gate account creation, so they must survive a crash
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	return open(opts, ttl, logger)
}

// OpenInMemory opens a Badger database that lives only in memory.
func OpenInMemory(ttl time.Duration, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, ttl, logger)
}

func open(opts badger.Options, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Info("Progress store opened", "path", opts.Dir, "in_memory", opts.InMemory, "ttl", ttl)
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	s.logger.Info("Closing progress store")
	return s.db.Close()
}

// Ping reports whether the database is open and accepts reads.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("progress store is closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// Save writes a session, replacing any previous version.
func (s *Store) Save(_ context.Context, session *Session) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.put(txn, session)
	})
}

// Get retrieves a session by ID.
func (s *Store) Get(_ context.Context, id string) (*Session, error) {
	var session *Session
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		session, err = s.read(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Update applies fn to the stored session inside a read-write transaction.
// Concurrent updates of the same session conflict and are retried, so fn
// must not have side effects outside the session.
// If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	for range maxUpdateAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var session *Session
		err := s.db.Update(func(txn *badger.Txn) error {
			var err error
			session, err = s.read(txn, id)
			if err != nil {
				return err
			}
			if err := fn(session); err != nil {
				return err
			}
			return s.put(txn, session)
		})
		if errors.Is(err, badger.ErrConflict) {
			s.logger.Debug("Redemption update conflict, retrying", "redemption", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, fmt.Errorf("update redemption %s: %w", id, badger.ErrConflict)
}

// Delete removes a session.
func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + id))
	})
}

// List returns all live sessions, optionally filtered by state.
func (s *Store) List(_ context.Context, states ...State) ([]*Session, error) {
	want := make(map[State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	var sessions []*Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var session Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &session)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if len(want) > 0 && !want[session.State] {
				continue
			}
			session.ensureMaps()
			sessions = append(sessions, &session)
		}
		return nil
	})
	return sessions, err
}

func (s *Store) read(txn *badger.Txn, id string) (*Session, error) {
	item, err := txn.Get([]byte(sessionPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}

	var session Session
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &session)
	}); err != nil {
		return nil, fmt.Errorf("decode redemption: %w", err)
	}
	session.ensureMaps()
	return &session, nil
}

func (s *Store) put(txn *badger.Txn, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal redemption: %w", err)
	}
	entry := badger.NewEntry([]byte(sessionPrefix+session.ID), data).WithTTL(s.ttl)
	return txn.SetEntry(entry)
}
