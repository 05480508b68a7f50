package routeros

import (
	"fmt"
	"strconv"
	"time"
)

// Querier is the read surface the batch reader needs; satisfied by *Client.
type Querier interface {
	Query(path string, filters []Filter, attrs map[string]string, timeout time.Duration) ([]Record, error)
}

// BatchReader pages large listings into fixed windows so one slow call only
// costs one window of work instead of the whole table. The protocol has no
// cursor, so windows are addressed with offset/count print attributes.
type BatchReader struct {
	q          Querier
	windowSize int
	timeout    time.Duration
}

func NewBatchReader(q Querier, windowSize int, timeout time.Duration) *BatchReader {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &BatchReader{q: q, windowSize: windowSize, timeout: timeout}
}

// ReadAll concatenates every window of path into one result. A failed window
// aborts the read and discards everything already fetched; deciding what a
// partial listing means is the orchestrator's job, not this layer's.
func (b *BatchReader) ReadAll(path string, filters []Filter) ([]Record, error) {
	var all []Record
	for offset := 0; ; offset += b.windowSize {
		attrs := map[string]string{
			"offset": strconv.Itoa(offset),
			"count":  strconv.Itoa(b.windowSize),
		}
		records, err := b.q.Query(path, filters, attrs, b.timeout)
		if err != nil {
			return nil, fmt.Errorf("read %s window at offset %d: %w", path, offset, err)
		}

		all = append(all, records...)
		if len(records) < b.windowSize {
			return all, nil
		}
	}
}
