package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/pkg/logger"
)

// Status tags visible to the dashboard.
const (
	Connected    = "connected"
	Disconnected = "disconnected"
	Timeout      = "timeout"
)

// Source tags. A cached entry keeps its device-timeout tag so nothing
// downstream mistakes it for a confirmed observation.
const (
	SourceDevice        = "device"
	SourceCache         = "cache"
	SourceDeviceTimeout = "device-timeout"
)

// Result is one status answer. Never persisted and never authoritative for
// billing; it exists only to feed the dashboard.
type Result struct {
	Username  string            `json:"username"`
	Status    string            `json:"status"`
	Session   map[string]string `json:"session,omitempty"`
	Source    string            `json:"source"`
	Hint      string            `json:"hint,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// KV is the TTL store behind the cache. Production uses the redis client;
// tests inject a map.
type KV interface {
	Set(key string, value interface{}, expiration time.Duration) error
	Lookup(key string) (string, bool, error)
	Delete(key string) error
}

// Querier is the live-session read path. Satisfied by *routeros.Client.
type Querier interface {
	Query(path string, filters []routeros.Filter, attrs map[string]string, timeout time.Duration) ([]routeros.Record, error)
}

const activePrintPath = "/ppp/active/print"

// Cache bounds device load from the dashboard: within the TTL a username
// costs zero device calls. Concurrent misses for the same username resolve
// redundantly; the short TTL keeps that affordable.
type Cache struct {
	kv                KV
	device            Querier
	log               *logger.Logger
	ttl               time.Duration
	queryTimeout      time.Duration
	aggressiveTimeout time.Duration
}

func NewCache(kv KV, device Querier, log *logger.Logger, ttl, queryTimeout, aggressiveTimeout time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	if aggressiveTimeout <= 0 {
		aggressiveTimeout = 20 * time.Second
	}
	return &Cache{
		kv:                kv,
		device:            device,
		log:               log,
		ttl:               ttl,
		queryTimeout:      queryTimeout,
		aggressiveTimeout: aggressiveTimeout,
	}
}

func cacheKey(username string) string {
	return "router:status:" + username
}

// Status answers from the cache within the TTL and otherwise performs one
// live query and fills the cache. A broken cache store degrades to the live
// path instead of failing the lookup.
func (c *Cache) Status(username string) (*Result, error) {
	raw, hit, err := c.kv.Lookup(cacheKey(username))
	if err != nil {
		c.log.Warn("Status cache lookup failed, querying device", "username", username, "error", err.Error())
	} else if hit {
		var res Result
		if jsonErr := json.Unmarshal([]byte(raw), &res); jsonErr == nil {
			if res.Source == SourceDevice {
				res.Source = SourceCache
			}
			return &res, nil
		}
		c.log.Warn("Discarding undecodable status cache entry", "username", username)
	}

	return c.queryAndFill(username)
}

// ForceRefresh evicts the entry and answers from a fresh device query.
func (c *Cache) ForceRefresh(username string) (*Result, error) {
	if err := c.kv.Delete(cacheKey(username)); err != nil {
		c.log.Warn("Status cache eviction failed", "username", username, "error", err.Error())
	}
	return c.Status(username)
}

// AggressiveRefresh bypasses the cache and runs one direct query under the
// extended timeout. For interactive troubleshooting of a single subscriber:
// a device that is slow but alive comes back as a "timeout" status with
// guidance, not as an error.
func (c *Cache) AggressiveRefresh(username string) (*Result, error) {
	records, err := c.device.Query(activePrintPath, usernameFilter(username), nil, c.aggressiveTimeout)
	if errors.Is(err, routeros.ErrTimeout) {
		return c.timeoutResult(username, c.aggressiveTimeout), nil
	}
	if err != nil {
		return nil, err
	}
	return mapRecords(username, records), nil
}

func (c *Cache) queryAndFill(username string) (*Result, error) {
	records, err := c.device.Query(activePrintPath, usernameFilter(username), nil, c.queryTimeout)
	if errors.Is(err, routeros.ErrTimeout) {
		res := c.timeoutResult(username, c.queryTimeout)
		c.fill(res)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res := mapRecords(username, records)
	c.fill(res)
	return res, nil
}

func (c *Cache) fill(res *Result) {
	blob, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.kv.Set(cacheKey(res.Username), string(blob), c.ttl); err != nil {
		c.log.Warn("Status cache fill failed", "username", res.Username, "error", err.Error())
	}
}

func (c *Cache) timeoutResult(username string, waited time.Duration) *Result {
	return &Result{
		Username: username,
		Status:   Timeout,
		Source:   SourceDeviceTimeout,
		Hint: fmt.Sprintf(
			"The router did not answer within %s. It may be busy or the link degraded; the subscriber can still be online. Retry, or check the router's load and the management link.",
			waited),
		CheckedAt: time.Now(),
	}
}

func usernameFilter(username string) []routeros.Filter {
	return []routeros.Filter{{Attr: "name", Value: username}}
}

func mapRecords(username string, records []routeros.Record) *Result {
	res := &Result{
		Username:  username,
		Status:    Disconnected,
		Source:    SourceDevice,
		CheckedAt: time.Now(),
	}
	if len(records) > 0 {
		res.Status = Connected
		res.Session = records[0]
	}
	return res
}
