package routeros

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windowQuerier serves a fixed dataset through offset/count windows and
// counts the calls it receives.
type windowQuerier struct {
	records []Record
	calls   int
	failAt  int // window index to fail on, -1 for never
}

func newWindowQuerier(n int) *windowQuerier {
	q := &windowQuerier{failAt: -1}
	for i := 0; i < n; i++ {
		q.records = append(q.records, Record{
			".id":  fmt.Sprintf("*%X", i+1),
			"name": fmt.Sprintf("user%03d", i),
		})
	}
	return q
}

func (q *windowQuerier) Query(path string, filters []Filter, attrs map[string]string, timeout time.Duration) ([]Record, error) {
	if q.failAt >= 0 && q.calls == q.failAt {
		q.calls++
		return nil, fmt.Errorf("window query: %w", ErrTimeout)
	}
	q.calls++

	offset, _ := strconv.Atoi(attrs["offset"])
	count, _ := strconv.Atoi(attrs["count"])
	if offset >= len(q.records) {
		return nil, nil
	}
	end := offset + count
	if end > len(q.records) {
		end = len(q.records)
	}
	return q.records[offset:end], nil
}

func TestReadAllWindows(t *testing.T) {
	q := newWindowQuerier(237)
	reader := NewBatchReader(q, 100, time.Second)

	records, err := reader.ReadAll("/ppp/secret/print", nil)
	require.NoError(t, err)

	assert.Len(t, records, 237)
	assert.Equal(t, 3, q.calls)
	// Windowing must be invisible in the result: same records, same order,
	// as one unbounded listing would have produced.
	assert.Equal(t, q.records, records)
}

func TestReadAllExactMultiple(t *testing.T) {
	q := newWindowQuerier(200)
	reader := NewBatchReader(q, 100, time.Second)

	records, err := reader.ReadAll("/ppp/secret/print", nil)
	require.NoError(t, err)
	assert.Len(t, records, 200)
	// The third window is the empty one that terminates the read.
	assert.Equal(t, 3, q.calls)
}

func TestReadAllEmptyTable(t *testing.T) {
	q := newWindowQuerier(0)
	reader := NewBatchReader(q, 100, time.Second)

	records, err := reader.ReadAll("/ppp/secret/print", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, q.calls)
}

func TestReadAllWindowFailureDiscardsEverything(t *testing.T) {
	q := newWindowQuerier(237)
	q.failAt = 2
	reader := NewBatchReader(q, 100, time.Second)

	records, err := reader.ReadAll("/ppp/secret/print", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Nil(t, records)
}
