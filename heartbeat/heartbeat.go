package heartbeat

import (
	"errors"
	"time"

	"github.com/vinayprograms/awclient/event"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Kind describes what MergeOrAccept did with a candidate heartbeat.
type Kind int

const (
	// NoPrior: there was nothing cached, the candidate becomes the pending event.
	NoPrior Kind = iota

	// Merged: the candidate extended the pending event. Nothing to send.
	Merged

	// Flushed: the pending event must be sent, extended by the candidate
	// when the two merge. The candidate starts a new pending event.
	Flushed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case NoPrior:
		return "no_prior"
	case Merged:
		return "merged"
	case Flushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Result is the outcome of MergeOrAccept.
type Result struct {
	Kind Kind

	// NewLast replaces the cached event for the bucket.
	NewLast event.Event

	// ToSend is set only for Flushed.
	ToSend *event.Event
}

// Config controls merging for one bucket.
type Config struct {
	// Pulsetime is the largest gap between the end of the pending event and
	// the start of the next heartbeat that still counts as continuous.
	Pulsetime time.Duration

	// CommitInterval is how long a pending event may grow before it is
	// sent even though it could still be extended.
	CommitInterval time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Pulsetime < 0 {
		return ErrInvalidConfig
	}
	if c.CommitInterval < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Mergeable reports whether candidate continues last: equal data and a
// start within [last.Timestamp, last.End()+pulsetime].
func Mergeable(last, candidate event.Event, pulsetime time.Duration) bool {
	if !last.SameData(candidate) {
		return false
	}
	if candidate.Timestamp.Before(last.Timestamp) {
		return false
	}
	return !candidate.Timestamp.After(last.End().Add(pulsetime))
}

// Merge returns the event spanning from last's start to candidate's end.
// The caller must have checked Mergeable.
func Merge(last, candidate event.Event) event.Event {
	merged := last.Clone()
	merged.Duration = candidate.End().Sub(last.Timestamp)
	if merged.Duration < last.Duration {
		merged.Duration = last.Duration
	}
	return merged
}

// MergeOrAccept decides what to do with a new heartbeat given the event
// currently pending for its bucket. last is nil when nothing is pending.
func MergeOrAccept(last *event.Event, candidate event.Event, pulsetime, commitInterval time.Duration) Result {
	if last == nil {
		return Result{Kind: NoPrior, NewLast: candidate}
	}

	if Mergeable(*last, candidate, pulsetime) {
		merged := Merge(*last, candidate)
		if last.Duration < commitInterval {
			return Result{Kind: Merged, NewLast: merged}
		}
		// Long enough: commit everything up to the candidate's end.
		return Result{Kind: Flushed, NewLast: candidate, ToSend: &merged}
	}

	send := *last
	return Result{Kind: Flushed, NewLast: candidate, ToSend: &send}
}

// Apply runs MergeOrAccept using the given configuration.
func (c Config) Apply(last *event.Event, candidate event.Event) Result {
	return MergeOrAccept(last, candidate, c.Pulsetime, c.CommitInterval)
}
