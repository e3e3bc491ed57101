package check

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type Status int

const (
	Down Status = 0
	Up   Status = 1
)

func (s Status) String() string {
	if s == Up {
		return "working"
	}
	return "failing"
}

const working = "working"

// MaxNameLen is the longest check name ingestion and storage accept.
const MaxNameLen = 50

// Result is the outcome of one check within a cycle.
type Result struct {
	Name    string
	Status  Status
	Message string
}

// Check tests a single dependency. Implementations report failures through the
// returned status; a panic is still contained by the Registry.
type Check interface {
	Run(ctx context.Context) (Status, string)
}

// Func adapts a plain function to a Check. A nil error is reported as working.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) (Status, string) {
	if err := f(ctx); err != nil {
		return Down, err.Error()
	}
	return Up, working
}

type entry struct {
	name  string
	check Check
}

// Registry holds named checks in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a check. Registering an existing name replaces the check but keeps
// its position. Names are cut to MaxNameLen characters.
func (r *Registry) Register(name string, c Check) {
	name = truncateName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].name == name {
			r.entries[i].check = c
			return
		}
	}

	r.entries = append(r.entries, entry{name: name, check: c})
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= MaxNameLen {
		return name
	}
	return string(runes[:MaxNameLen])
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.name)
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// RunAll executes every check sequentially and returns one result per check,
// whatever the individual outcomes.
func (r *Registry) RunAll(ctx context.Context) []Result {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, run(ctx, e))
	}
	return results
}

func run(ctx context.Context, e entry) (res Result) {
	res.Name = e.name

	defer func() {
		if p := recover(); p != nil {
			logrus.WithField("check", e.name).Errorf("Check panicked: %v", p)

			res.Status = Down
			res.Message = fmt.Sprintf("unexpected error: %v", p)
		}
	}()

	res.Status, res.Message = e.check.Run(ctx)

	if res.Status != Up {
		res.Status = Down
		if res.Message == "" {
			res.Message = "unknown error"
		}
	}

	return res
}

// Failing reports whether any result is down.
func Failing(results []Result) bool {
	for _, r := range results {
		if r.Status != Up {
			return true
		}
	}
	return false
}
