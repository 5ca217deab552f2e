package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/posctl/internal/actuator"
)

// Kind tells number entries from bool entries.
type Kind string

const (
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
)

// Entry is one dashboard value.
type Entry struct {
	Key     string    `json:"key"`
	Kind    Kind      `json:"kind"`
	Number  float64   `json:"number,omitempty"`
	Bool    bool      `json:"bool,omitempty"`
	Updated time.Time `json:"updated"`
}

// Value returns the entry's payload as a float64 or a bool.
func (e Entry) Value() interface{} {
	if e.Kind == KindBool {
		return e.Bool
	}
	return e.Number
}

// Table is an in-memory Store safe for concurrent use. The control loop
// writes to it while the server and the console read and edit it.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
	version uint64
	now     func() time.Time
}

var (
	_ Store     = (*Table)(nil)
	_ Defaulter = (*Table)(nil)
)

func NewTable() *Table {
	return &Table{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (t *Table) PublishNumber(key string, v float64) error {
	if !finite(v) {
		return errors.Wrapf(actuator.ErrNonFinite, "publishing %q", key)
	}
	t.SetNumber(key, v)
	return nil
}

func (t *Table) PublishBool(key string, v bool) error {
	t.SetBool(key, v)
	return nil
}

func (t *Table) NumberOrDefault(key string, def float64) (float64, error) {
	v, ok := t.Number(key)
	if !ok {
		return def, nil
	}
	return v, nil
}

func (t *Table) SetDefaultNumber(key string, v float64) error {
	if !finite(v) {
		return errors.Wrapf(actuator.ErrNonFinite, "default for %q", key)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return nil
	}
	t.setLocked(Entry{Key: key, Kind: KindNumber, Number: v})
	return nil
}

// SetNumber stores v under key. Publishing an unchanged value does not bump
// the version. NaN and Inf are dropped: they have no JSON encoding.
func (t *Table) SetNumber(key string, v float64) {
	if !finite(v) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok && e.Kind == KindNumber && e.Number == v {
		return
	}
	t.setLocked(Entry{Key: key, Kind: KindNumber, Number: v})
}

func (t *Table) SetBool(key string, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok && e.Kind == KindBool && e.Bool == v {
		return
	}
	t.setLocked(Entry{Key: key, Kind: KindBool, Bool: v})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (t *Table) setLocked(e Entry) {
	e.Updated = t.now()
	t.entries[e.Key] = e
	t.version++
}

// Number returns the number under key. Bool entries do not count.
func (t *Table) Number(key string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok || e.Kind != KindNumber {
		return 0, false
	}
	return e.Number, true
}

func (t *Table) Bool(key string) (bool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok || e.Kind != KindBool {
		return false, false
	}
	return e.Bool, true
}

func (t *Table) Get(key string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

func (t *Table) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		delete(t.entries, key)
		t.version++
	}
}

// Snapshot returns every entry sorted by key.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Version increases on every change.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}
