// Package snowflake generates Twitter-style 64-bit time-sortable IDs.
//
// Mastodon clients expect numeric, roughly chronological status and account
// IDs, so every entity the gateway exposes is identified by a snowflake. The
// following layout is used:
//
//	+---------------------------------------------------------------------+
//	| 1 bit unused | 41 bit timestamp | 10 bit worker ID | 12 bit sequence |
//	+---------------------------------------------------------------------+
//
// The timestamp is milliseconds since Epoch. IDs generated by one worker are
// strictly monotonic; across workers the worker ID disambiguates.
package snowflake

import (
	"sync"
	"time"
)

// Epoch is the gateway epoch: 2020-01-01T00:00:00Z in Unix milliseconds.
// Changing it would change every derived ID, so it is fixed forever.
const Epoch int64 = 1577836800000

const (
	bitsWorker   = 10
	bitsSequence = 12

	timestampShift = bitsWorker + bitsSequence

	// MaxWorkerID is the largest valid worker ID (10 bits).
	MaxWorkerID = 1<<bitsWorker - 1

	// MaxSequence is the largest per-millisecond sequence value (12 bits).
	MaxSequence = 1<<bitsSequence - 1

	// maxRegressionWait bounds the spin on a backwards clock jump. Past this
	// the generator advances its own notion of time by one millisecond per ID
	// instead of stalling callers indefinitely.
	maxRegressionWait = 500 * time.Millisecond
)

// Generator produces snowflake IDs for a single worker. It is safe for
// concurrent use; state is serialized under an internal mutex.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	last     int64
	sequence int64

	// now is swappable for tests.
	now func() int64
}

// New creates a Generator for the given worker ID. Worker IDs outside
// [0, MaxWorkerID] are masked into range.
func New(workerID int64) *Generator {
	return &Generator{
		workerID: workerID & MaxWorkerID,
		last:     -1,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Next returns the next snowflake ID. Within a single millisecond the
// sequence advances; on sequence overflow Next blocks until the next
// millisecond rather than returning a duplicate.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.last {
		ts = g.waitForClock()
	}

	if ts == g.last {
		g.sequence = (g.sequence + 1) & MaxSequence
		if g.sequence == 0 {
			// Sequence exhausted for this millisecond; spin to the next one.
			for ts <= g.last {
				ts = g.now()
			}
		}
	} else {
		g.sequence = 0
	}

	g.last = ts
	return Build(ts, g.workerID, g.sequence)
}

// waitForClock spins until the wall clock catches up with g.last after a
// backwards jump. The wait is capped; on a large regression the generator
// keeps handing out IDs against a self-advanced timestamp.
func (g *Generator) waitForClock() int64 {
	deadline := time.Now().Add(maxRegressionWait)
	for {
		ts := g.now()
		if ts >= g.last {
			return ts
		}
		if time.Now().After(deadline) {
			return g.last + 1
		}
		time.Sleep(time.Millisecond)
	}
}

// Build assembles a snowflake from its parts. Exposed for the ID mapper,
// which derives IDs from AT URI timestamps rather than the wall clock.
func Build(timestampMillis, workerID, sequence int64) int64 {
	return ((timestampMillis - Epoch) << timestampShift) |
		((workerID & MaxWorkerID) << bitsSequence) |
		(sequence & MaxSequence)
}

// Timestamp extracts the creation time of a snowflake.
func Timestamp(id int64) time.Time {
	return time.UnixMilli((id >> timestampShift) + Epoch).UTC()
}
