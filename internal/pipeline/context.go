package pipeline

import (
	"fmt"
	"sort"
	"sync"
)

// Context holds the accumulated stage outputs of one pipeline run. Entries
// are append-only: once a stage has written its output, any attempt to
// overwrite it is an error.
type Context struct {
	mu      sync.RWMutex
	entries map[string]string
	order   []string
}

func NewContext() *Context {
	return &Context{entries: make(map[string]string)}
}

// Set records a stage output. Writing the same stage twice fails.
func (c *Context) Set(stage, output string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[stage]; ok {
		return fmt.Errorf("stage %q already recorded", stage)
	}
	c.entries[stage] = output
	c.order = append(c.order, stage)
	return nil
}

func (c *Context) Get(stage string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.entries[stage]
	return out, ok
}

func (c *Context) Has(stage string) bool {
	_, ok := c.Get(stage)
	return ok
}

// Stages returns the stage names in the order they were recorded.
func (c *Context) Stages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// View returns a read-only snapshot restricted to the named stages.
// Stages without a recorded entry are omitted.
func (c *Context) View(stages ...string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view := make(map[string]string, len(stages))
	for _, s := range stages {
		if out, ok := c.entries[s]; ok {
			view[s] = out
		}
	}
	return view
}

// Snapshot returns every recorded entry, keyed by stage name.
func (c *Context) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		snap[k] = v
	}
	return snap
}

// SortedStages returns recorded stage names in lexical order, for logging.
func (c *Context) SortedStages() []string {
	names := c.Stages()
	sort.Strings(names)
	return names
}
