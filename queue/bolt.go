package queue

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/logging"
)

var (
	boltRequests = []byte("requests")
	boltMeta     = []byte("meta")
	keyVersion   = []byte("format_version")
)

// BoltStore keeps requests in a bbolt file. Each Enqueue is one synced
// transaction.
type BoltStore struct {
	mu     sync.Mutex
	db     *bolt.DB
	logger *logging.Logger
	signal *signal
	peeked []byte
	closed bool
}

// OpenBolt opens or creates a bolt queue at path.
func OpenBolt(path string, opts Options) (*BoltStore, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "create queue directory")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.LockTimeout})
	if err != nil {
		if stderrors.Is(err, bolt.ErrTimeout) {
			return nil, ErrLocked
		}
		return nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "open queue")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltRequests); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(boltMeta)
		if err != nil {
			return err
		}
		if v := meta.Get(keyVersion); v != nil {
			return checkVersion(v)
		}
		return meta.Put(keyVersion, versionBytes())
	})
	if err != nil {
		db.Close()
		if errors.IsStorage(err) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "initialize queue")
	}

	return &BoltStore{
		db:     db,
		logger: opts.Logger.WithComponent("queue"),
		signal: newSignal(),
	}, nil
}

// Enqueue appends a request durably.
func (s *BoltStore) Enqueue(r Request) error {
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

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltRequests)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(nil, seq), data)
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeStorage, "enqueue")
	}

	s.signal.notify()
	return nil
}

// Peek returns the oldest request, skipping corrupt records.
func (s *BoltStore) Peek() (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	for {
		var key, value []byte
		err := s.db.View(func(tx *bolt.Tx) error {
			k, v := tx.Bucket(boltRequests).Cursor().First()
			if k != nil {
				key = append([]byte(nil), k...)
				value = append([]byte(nil), v...)
			}
			return nil
		})
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "peek")
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
			"seq":   keySeq(nil, key),
			"error": err.Error(),
		})
		if err := s.delete(key); err != nil {
			return nil, err
		}
	}
}

// Acknowledge removes the request last returned by Peek.
func (s *BoltStore) Acknowledge() error {
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

func (s *BoltStore) delete(key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltRequests).Delete(key)
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeStorage, "delete")
	}
	return nil
}

// Size returns the number of pending requests.
func (s *BoltStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(boltRequests).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrCodeStorage, "size")
	}
	return n, nil
}

// Notify returns the enqueue signal.
func (s *BoltStore) Notify() <-chan struct{} {
	return s.signal.C()
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
