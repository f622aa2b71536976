package queue

import (
	"encoding/binary"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vinayprograms/awclient/errors"
)

// record is the stored form of a Request.
type record struct {
	ID         string    `msgpack:"id"`
	Endpoint   string    `msgpack:"endpoint"`
	Payload    []byte    `msgpack:"payload"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
}

func encodeRequest(r Request) ([]byte, error) {
	data, err := msgpack.Marshal(&record{
		ID:         r.ID,
		Endpoint:   r.Endpoint,
		Payload:    r.Payload,
		EnqueuedAt: r.EnqueuedAt,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeStorage, "encode request")
	}
	return data, nil
}

func decodeRequest(data []byte) (*Request, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCorruption, "decode request")
	}
	r := &Request{
		ID:         rec.ID,
		Endpoint:   rec.Endpoint,
		Payload:    rec.Payload,
		EnqueuedAt: rec.EnqueuedAt,
	}
	if err := r.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCorruption, "invalid request record")
	}
	return r, nil
}

// seqKey encodes a sequence number so that byte order is insertion order.
func seqKey(prefix []byte, seq uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], seq)
	return k
}

func keySeq(prefix, key []byte) uint64 {
	if len(key) < len(prefix)+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(prefix):])
}

func versionBytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, FormatVersion)
	return b
}

func checkVersion(stored []byte) error {
	if len(stored) != 8 {
		return errors.Storage("queue format version record is malformed")
	}
	if v := binary.BigEndian.Uint64(stored); v != FormatVersion {
		return errors.Newf(errors.ErrCodeStorage, "queue format version %d, want %d", v, FormatVersion)
	}
	return nil
}
