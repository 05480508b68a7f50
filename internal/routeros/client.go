package routeros

import (
	"fmt"
	"sort"
	"time"
)

// Client speaks command sentences over the manager's session. It performs no
// retries of its own: sync and status callers apply different policies and
// own that decision.
type Client struct {
	mgr *Manager
}

func NewClient(mgr *Manager) *Client {
	return &Client{mgr: mgr}
}

// Query runs a read command and decodes the reply records in device order.
// An empty result is a valid outcome, not an error. The call fails with
// ErrTimeout once the deadline passes, whether or not the device is alive.
func (c *Client) Query(path string, filters []Filter, attrs map[string]string, timeout time.Duration) ([]Record, error) {
	words := buildWords(path, filters, attrs)

	rep, err := c.mgr.run(words, timeout)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	if rep.trap != nil {
		return nil, fmt.Errorf("query %s: %w", path, rep.trap)
	}
	return rep.records, nil
}

// Execute runs a mutating command (add/set/remove). For add it returns the
// device-assigned id from the =ret= word; for set/remove it echoes the .id
// the caller addressed. Device refusals surface as *TrapError.
func (c *Client) Execute(path string, attrs map[string]string, timeout time.Duration) (string, error) {
	words := buildWords(path, nil, attrs)

	rep, err := c.mgr.run(words, timeout)
	if err != nil {
		return "", fmt.Errorf("execute %s: %w", path, err)
	}
	if rep.trap != nil {
		return "", fmt.Errorf("execute %s: %w", path, rep.trap)
	}

	if id := rep.done["ret"]; id != "" {
		return id, nil
	}
	return attrs[".id"], nil
}

// buildWords assembles one sentence: the command path, attribute words in
// sorted key order (the device does not care, tests do), then query words.
func buildWords(path string, filters []Filter, attrs map[string]string) []string {
	words := []string{path}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		words = append(words, "="+k+"="+attrs[k])
	}

	for _, f := range filters {
		words = append(words, "?"+f.Op+f.Attr+"="+f.Value)
	}
	return words
}
