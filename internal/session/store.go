package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/errors"
	"github.com/victornm/chatquiz/internal/event"
	"github.com/victornm/chatquiz/internal/storage"
	"github.com/victornm/chatquiz/internal/telemetry"
)

// Discard, returned from a mutation, ends it without writing anything. Events emitted before
// it are still published.
var Discard = stderrors.New("session: discard mutation")

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

type StoreConfig struct {
	KV       storage.KV
	EventBus Publisher
}

// Store maps chat ids to sessions. Reads are lock free; every write goes through Mutate,
// which holds the chat's lock from the read until the write is committed.
type Store struct {
	kv    storage.KV
	eb    Publisher
	locks *locker
}

func NewStore(c StoreConfig) *Store {
	return &Store{
		kv:    c.KV,
		eb:    c.EventBus,
		locks: newLocker(),
	}
}

// Tx is the state handed to a mutation.
type Tx struct {
	// Session is a private copy of the current session, or an inactive default.
	Session *domain.Session

	events []event.Event
}

// Emit queues an event that is published once the mutation commits or is discarded.
func (tx *Tx) Emit(e event.Event) {
	tx.events = append(tx.events, e)
}

// Get returns the last committed session of the chat.
func (s *Store) Get(ctx context.Context, chatID int64) (*domain.Session, error) {
	ss, _, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if ss.Status == domain.StatusInactive {
		return nil, errors.NoActiveSession(chatID)
	}

	return ss, nil
}

// Mutate applies fn to the chat's session under the chat's exclusive lock.
//
// Once fn returns, an Active session is written, a Completed session is deleted and an
// Inactive one leaves the store untouched. The write is committed before Mutate returns and
// before any event emitted by fn is published. If fn fails nothing is written.
func (s *Store) Mutate(ctx context.Context, chatID int64, fn func(tx *Tx) error) (*domain.Session, error) {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("lock chat %d: %w", chatID, err)
	}
	defer unlock()
	telemetry.StoreLockWait.Observe(time.Since(start).Seconds())

	cur, rev, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}

	tx := &Tx{Session: cur.Clone()}
	if err := fn(tx); err != nil {
		if stderrors.Is(err, Discard) {
			s.publish(context.WithoutCancel(ctx), tx.events)
			return cur, nil
		}
		return nil, err
	}

	next := tx.Session
	if err := checkTransition(cur.Status, next.Status); err != nil {
		return nil, errors.Internal(fmt.Errorf("chat %d: %w", chatID, err))
	}

	// The caller may give up waiting, but a started commit is finished.
	cctx := context.WithoutCancel(ctx)
	if err := s.commit(cctx, key(chatID), next, rev); err != nil {
		return nil, err
	}

	s.publish(cctx, tx.events)

	return next.Clone(), nil
}

func (s *Store) publish(ctx context.Context, events []event.Event) {
	if s.eb == nil {
		return
	}

	for _, e := range events {
		s.eb.Publish(ctx, e)
	}
}

// Delete removes the chat's record, whatever its state.
func (s *Store) Delete(ctx context.Context, chatID int64) error {
	unlock, err := s.locks.Lock(ctx, chatID)
	if err != nil {
		return fmt.Errorf("lock chat %d: %w", chatID, err)
	}
	defer unlock()

	k := key(chatID)
	r, err := s.kv.Get(ctx, k)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", k, err)
	}

	return s.conflict(ctx, k, s.kv.Delete(context.WithoutCancel(ctx), k, r.Revision))
}

func (s *Store) commit(ctx context.Context, k string, next *domain.Session, rev int64) error {
	switch next.Status {
	case domain.StatusInactive:
		return nil

	case domain.StatusActive:
		if err := next.Validate(); err != nil {
			return errors.Internal(fmt.Errorf("refusing to store invalid session %s: %w", k, err))
		}

		b, err := encode(next)
		if err != nil {
			return errors.Internal(fmt.Errorf("encode %s: %w", k, err))
		}

		_, err = s.kv.Put(ctx, k, b, rev)
		return s.conflict(ctx, k, err)

	case domain.StatusCompleted:
		return s.conflict(ctx, k, s.kv.Delete(ctx, k, rev))
	}

	return errors.Internal(fmt.Errorf("unknown status %q", next.Status))
}

// conflict turns a revision conflict into a concurrency violation. Under the chat lock it can
// only come from a writer outside this process, so it is logged as a bug.
func (s *Store) conflict(ctx context.Context, k string, err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, storage.ErrConflict) {
		slog.ErrorContext(ctx, "session: concurrent write to a locked chat",
			"key", k,
			"bug", true,
			"error", err,
		)
		return errors.ConcurrencyViolation(k, err)
	}

	return fmt.Errorf("commit %s: %w", k, err)
}

// load reads the chat's session. Missing and corrupt records both yield an inactive default;
// the returned revision is the one stored, so a corrupt record can be overwritten.
func (s *Store) load(ctx context.Context, chatID int64) (*domain.Session, int64, error) {
	k := key(chatID)

	r, err := s.kv.Get(ctx, k)
	if stderrors.Is(err, storage.ErrNotFound) {
		return domain.Inactive(chatID), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", k, err)
	}

	ss, err := decode(chatID, r.Value)
	if err != nil {
		slog.WarnContext(ctx, "session: dropping corrupt record",
			"key", k,
			"revision", r.Revision,
			"error", errors.StorageCorruption(k, err),
		)
		return domain.Inactive(chatID), r.Revision, nil
	}

	return ss, r.Revision, nil
}

func checkTransition(from, to domain.Status) error {
	switch {
	case from == to:
		return nil
	case from == domain.StatusInactive && to == domain.StatusActive:
		return nil
	case from == domain.StatusActive && to == domain.StatusCompleted:
		return nil
	}

	return fmt.Errorf("illegal status transition %s -> %s", from, to)
}

func key(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
