package idgen

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake-style generator for transfer reference numbers.
//
// References identify a transfer across the service boundary (receipts, outbox
// message keys, lock ownership) and must be unique across instances without a
// round-trip to the database. Journal entry and account identities still come
// from the store; references never replace them.
//
// Layout: 41 bits of millisecond timestamp, 10 bits of worker id, 12 bits of
// per-millisecond sequence.

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

// NewSnowflake creates a generator for the given worker id.
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be between 0 and %d", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Generate produces the next unique id.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// TransferReference formats a human-scannable transfer reference,
// e.g. TXF20240115143052_12345678.
func (s *Snowflake) TransferReference() string {
	id := s.Generate()
	timestamp := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("TXF%s%08d", timestamp, id%100000000)
}
