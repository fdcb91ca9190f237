package pagespeed

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Outcome is the settled state of one (URL, strategy) request.
// Data is non-nil only when Success is true; Err is non-nil only when it is false.
type Outcome struct {
	Success bool
	// Data is the decoded JSON response body with no schema applied.
	Data any
	// StatusCode is the HTTP status of the response, 0 if none was received.
	StatusCode int
	Err        error
}

// outcomeView is the serialised form shared by the JSON and YAML encoders.
type outcomeView struct {
	Success    bool   `json:"success" yaml:"success"`
	Data       any    `json:"data,omitempty" yaml:"data,omitempty"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (o Outcome) view() outcomeView {
	v := outcomeView{Success: o.Success, Data: o.Data, StatusCode: o.StatusCode}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

// MarshalJSON renders the outcome as {"success":…,"data":…}, with "error"
// added for failed requests.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.view())
}

// MarshalYAML implements yaml.Marshaler.
func (o Outcome) MarshalYAML() (interface{}, error) {
	return o.view(), nil
}

// BatchResult maps URL → strategy → Outcome. URLs keep the order in which they
// were passed to the query; strategies keep their expansion order.
// A BatchResult is never modified after it is handed to the caller.
type BatchResult struct {
	urls    []string
	entries map[string]*urlEntry
}

type urlEntry struct {
	strategies []Strategy
	outcomes   map[Strategy]Outcome
}

func newBatchResult(urls []string, strategies []Strategy) *BatchResult {
	br := &BatchResult{
		urls:    urls,
		entries: make(map[string]*urlEntry, len(urls)),
	}
	for _, u := range urls {
		br.entries[u] = &urlEntry{
			strategies: strategies,
			outcomes:   make(map[Strategy]Outcome, len(strategies)),
		}
	}
	return br
}

func (br *BatchResult) set(url string, s Strategy, o Outcome) {
	br.entries[url].outcomes[s] = o
}

// URLs returns the result's URLs in input order.
func (br *BatchResult) URLs() []string {
	out := make([]string, len(br.urls))
	copy(out, br.urls)
	return out
}

// Strategies returns the strategies recorded for url, or nil if url was not queried.
func (br *BatchResult) Strategies(url string) []Strategy {
	e, ok := br.entries[url]
	if !ok {
		return nil
	}
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// Get returns the outcome for (url, s).
func (br *BatchResult) Get(url string, s Strategy) (Outcome, bool) {
	e, ok := br.entries[url]
	if !ok {
		return Outcome{}, false
	}
	o, ok := e.outcomes[s]
	return o, ok
}

// Outcomes returns a copy of the per-strategy outcomes for url.
func (br *BatchResult) Outcomes(url string) map[Strategy]Outcome {
	e, ok := br.entries[url]
	if !ok {
		return nil
	}
	out := make(map[Strategy]Outcome, len(e.outcomes))
	for s, o := range e.outcomes {
		out[s] = o
	}
	return out
}

// Len returns the number of (URL, strategy) pairs in the result.
func (br *BatchResult) Len() int {
	var n int
	for _, e := range br.entries {
		n += len(e.outcomes)
	}
	return n
}

// Each calls fn for every pair, URLs in input order and strategies in
// expansion order.
func (br *BatchResult) Each(fn func(url string, s Strategy, o Outcome)) {
	for _, u := range br.urls {
		e := br.entries[u]
		for _, s := range e.strategies {
			fn(u, s, e.outcomes[s])
		}
	}
}

// Failed returns the number of pairs whose request did not succeed.
func (br *BatchResult) Failed() int {
	var n int
	br.Each(func(_ string, _ Strategy, o Outcome) {
		if !o.Success {
			n++
		}
	})
	return n
}

// MarshalJSON writes the result as a nested object. encoding/json sorts map
// keys, so the object is assembled by hand to keep input order.
func (br *BatchResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, u := range br.urls {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONKey(&buf, u); err != nil {
			return nil, err
		}
		e := br.entries[u]
		buf.WriteByte('{')
		for j, s := range e.strategies {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONKey(&buf, string(s)); err != nil {
				return nil, err
			}
			b, err := json.Marshal(e.outcomes[s])
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONKey(buf *bytes.Buffer, key string) error {
	b, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting an ordered mapping node.
func (br *BatchResult) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, u := range br.urls {
		e := br.entries[u]
		inner := &yaml.Node{Kind: yaml.MappingNode}
		for _, s := range e.strategies {
			val := &yaml.Node{}
			if err := val.Encode(e.outcomes[s]); err != nil {
				return nil, err
			}
			inner.Content = append(inner.Content, scalarNode(string(s)), val)
		}
		root.Content = append(root.Content, scalarNode(u), inner)
	}
	return root, nil
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
