package queue

import (
	stderrors "errors"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/logging"
)

const pebbleLockRetry = 25 * time.Millisecond

var (
	pebbleReqPrefix  = []byte("q/")
	pebbleReqUpper   = []byte("q0") // '0' follows '/'
	pebbleVersionKey = []byte("m/format_version")
)

// PebbleStore keeps requests in a pebble directory, one synced write per
// operation. Keys are q/<big-endian seq>.
type PebbleStore struct {
	mu     sync.Mutex
	db     *pebble.DB
	logger *logging.Logger
	signal *signal
	next   uint64
	count  int
	peeked []byte
	closed bool
}

// OpenPebble opens or creates a pebble queue in the directory path.
func OpenPebble(path string, opts Options) (*PebbleStore, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = time.Second
	}

	// pebble does not wait for its LOCK file, so poll until LockTimeout.
	deadline := time.Now().Add(opts.LockTimeout)
	var db *pebble.DB
	for {
		var err error
		db, err = pebble.Open(path, &pebble.Options{})
		if err == nil {
			break
		}
		if !lockHeld(err) {
			return nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "open queue")
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}
		time.Sleep(pebbleLockRetry)
	}

	s := &PebbleStore{
		db:     db,
		logger: opts.Logger.WithComponent("queue"),
		signal: newSignal(),
		next:   1,
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init checks the format version and recovers the sequence and count.
func (s *PebbleStore) init() error {
	v, closer, err := s.db.Get(pebbleVersionKey)
	switch {
	case stderrors.Is(err, pebble.ErrNotFound):
		if err := s.db.Set(pebbleVersionKey, versionBytes(), pebble.Sync); err != nil {
			return errors.WrapWithCode(err, errors.ErrCodeStorage, "write format version")
		}
	case err != nil:
		return errors.WrapWithCode(err, errors.ErrCodeStorage, "read format version")
	default:
		verr := checkVersion(v)
		closer.Close()
		if verr != nil {
			return verr
		}
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: pebbleReqPrefix, UpperBound: pebbleReqUpper})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeStorage, "scan queue")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		s.count++
	}
	if iter.Last() {
		s.next = keySeq(pebbleReqPrefix, iter.Key()) + 1
	}
	return iter.Error()
}

// Enqueue appends a request durably.
func (s *PebbleStore) Enqueue(r Request) error {
	if err := r.Validate(); err != nil {
		return errors.InvalidInput(err.Error(), errors.WithCause(err))
	}
	data, err := encodeRequest(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.db.Set(seqKey(pebbleReqPrefix, s.next), data, pebble.Sync); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeStorage, "enqueue")
	}
	s.next++
	s.count++

	s.signal.notify()
	return nil
}

// Peek returns the oldest request, skipping corrupt records.
func (s *PebbleStore) Peek() (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	for {
		key, value, err := s.first()
		if err != nil {
			return nil, err
		}
		if key == nil {
			s.peeked = nil
			return nil, nil
		}

		req, err := decodeRequest(value)
		if err == nil {
			s.peeked = key
			return req, nil
		}

		s.logger.Error("dropping corrupt queue record", map[string]interface{}{
			"seq":   keySeq(pebbleReqPrefix, key),
			"error": err.Error(),
		})
		if err := s.delete(key); err != nil {
			return nil, err
		}
	}
}

func (s *PebbleStore) first() ([]byte, []byte, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: pebbleReqPrefix, UpperBound: pebbleReqUpper})
	if err != nil {
		return nil, nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "peek")
	}
	defer iter.Close()

	if !iter.First() {
		if err := iter.Error(); err != nil {
			return nil, nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "peek")
		}
		return nil, nil, nil
	}
	key := append([]byte(nil), iter.Key()...)
	value := append([]byte(nil), iter.Value()...)
	return key, value, nil
}

// Acknowledge removes the request last returned by Peek.
func (s *PebbleStore) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.peeked == nil {
		return ErrNothingPeeked
	}
	if err := s.delete(s.peeked); err != nil {
		return err
	}
	s.peeked = nil
	return nil
}

func (s *PebbleStore) delete(key []byte) error {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeStorage, "delete")
	}
	if s.count > 0 {
		s.count--
	}
	return nil
}

// Size returns the number of pending requests.
func (s *PebbleStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.count, nil
}

// Notify returns the enqueue signal.
func (s *PebbleStore) Notify() <-chan struct{} {
	return s.signal.C()
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*PebbleStore)(nil)

// lockHeld reports whether pebble.Open failed because another process, or
// another store in this process, holds the directory's LOCK file.
func lockHeld(err error) bool {
	if stderrors.Is(err, syscall.EAGAIN) || stderrors.Is(err, syscall.EACCES) || stderrors.Is(err, syscall.EWOULDBLOCK) {
		return true
	}
	return strings.Contains(err.Error(), "lock held by current process")
}
