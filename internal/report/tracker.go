package report

import (
	"sync"

	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// DefaultWindow is the number of recent outcomes tracked per pair.
const DefaultWindow = 20

// Tracker keeps a bounded history of query outcomes per (URL, strategy) pair
// across repeated batches and derives an availability percentage from it.
//
// All exported methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	window int
	states map[pairKey]*pairState
}

type pairKey struct {
	url      string
	strategy pagespeed.Strategy
}

type pairState struct {
	history []bool // circular buffer of outcomes, newest last
}

// NewTracker returns a Tracker keeping the last window outcomes per pair.
// A non-positive window means DefaultWindow.
func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{window: window, states: make(map[pairKey]*pairState)}
}

// Observe records every outcome of br and returns its summaries with
// AvailabilityPct taken over the tracked window.
func (t *Tracker) Observe(br *pagespeed.BatchResult) []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, br.Len())
	br.Each(func(url string, s pagespeed.Strategy, o pagespeed.Outcome) {
		st := t.stateFor(pairKey{url, s})
		st.record(o.Success, t.window)

		sum := summarize(url, s, o)
		sum.AvailabilityPct = st.availabilityPct()
		out = append(out, sum)
	})
	return out
}

// Forget drops history for URLs not in keep. Used after a config reload
// removes URLs from the batch.
func (t *Tracker) Forget(keep []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	wanted := make(map[string]struct{}, len(keep))
	for _, u := range keep {
		wanted[u] = struct{}{}
	}
	removed := 0
	for k := range t.states {
		if _, ok := wanted[k.url]; !ok {
			delete(t.states, k)
			removed++
		}
	}
	return removed
}

func (t *Tracker) stateFor(k pairKey) *pairState {
	if st, ok := t.states[k]; ok {
		return st
	}
	st := &pairState{}
	t.states[k] = st
	return st
}

func (st *pairState) record(success bool, window int) {
	if len(st.history) >= window {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *pairState) availabilityPct() float64 {
	if len(st.history) == 0 {
		return 100
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
