package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/internal/status"
	"isp-saas.com/routersync/pkg/logger"
)

type memKV struct {
	entries map[string]string
}

func (kv *memKV) Set(key string, value interface{}, _ time.Duration) error {
	kv.entries[key] = value.(string)
	return nil
}

func (kv *memKV) Lookup(key string) (string, bool, error) {
	value, ok := kv.entries[key]
	return value, ok, nil
}

func (kv *memKV) Delete(key string) error {
	delete(kv.entries, key)
	return nil
}

type countingQuerier struct {
	records []routeros.Record
	err     error
	calls   int
}

func (q *countingQuerier) Query(path string, filters []routeros.Filter, attrs map[string]string, timeout time.Duration) ([]routeros.Record, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return q.records, nil
}

// A warm cache entry must answer a status request without any router
// traffic, even while the session is completely down.
func TestGetStatusWarmCacheSkipsRouter(t *testing.T) {
	kv := &memKV{entries: make(map[string]string)}
	device := &countingQuerier{records: []routeros.Record{{"name": "alice"}}}
	cache := status.NewCache(kv, device, logger.New(), 30*time.Second, time.Second, time.Second)

	_, err := cache.Status("alice")
	require.NoError(t, err)
	require.Equal(t, 1, device.calls)

	// The router drops off the network entirely.
	device.err = fmt.Errorf("query: %w", routeros.ErrConnection)

	h := New(nil, nil, routeros.NewManager(logger.New(), time.Second), nil, nil,
		cache, logger.New(), time.Second)

	req := mux.SetURLVars(
		httptest.NewRequest(http.MethodGet, "/api/status/alice", nil),
		map[string]string{"username": "alice"})
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, device.calls)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	body, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result status.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, status.Connected, result.Status)
	assert.Equal(t, status.SourceCache, result.Source)
}
