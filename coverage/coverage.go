// Package coverage merges the coverage maps found by independent fuzzing workers.
package coverage

import (
	"io"
	"math"
	"os"
	"reflect"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Edge is a control-flow edge between two basic block ids.
type Edge struct {
	From uint64
	To   uint64
}

// Target is the canonical JSON encoding of a target scalar. The compiler
// pass writes basic block ids, hand-written maps may use names.
type Target string

// NewTarget canonicalizes a JSON scalar. Integral numbers lose any fraction
// or exponent so that 3 and 3.0 name the same target.
func NewTarget(raw []byte) (Target, error) {
	iter := jsoniter.ParseBytes(json, raw)
	var t Target
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		t = "null"
	case jsoniter.BoolValue:
		t = Target(strconv.FormatBool(iter.ReadBool()))
	case jsoniter.NumberValue:
		n := string(iter.ReadNumber())
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			t = Target(strconv.FormatInt(i, 10))
			break
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return "", errors.Errorf("Failed to decode target %s: %s", raw, err)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			t = Target(strconv.FormatInt(int64(f), 10))
		} else {
			t = Target(strconv.FormatFloat(f, 'g', -1, 64))
		}
	case jsoniter.StringValue:
		t = StringTarget(iter.ReadString())
	default:
		return "", errors.Errorf("Target %s is not a scalar", raw)
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return "", errors.Errorf("Failed to decode target %s: %s", raw, iter.Error)
	}
	return t, nil
}

// StringTarget names a target by string.
func StringTarget(s string) Target {
	enc, _ := json.Marshal(s)
	return Target(enc)
}

func (t Target) rank() int {
	switch {
	case t == "null":
		return 0
	case t == "false" || t == "true":
		return 1
	case len(t) > 0 && t[0] == '"':
		return 3
	}
	return 2
}

// less orders null, booleans, numbers by value, then strings.
func (t Target) less(o Target) bool {
	if r, or := t.rank(), o.rank(); r != or {
		return r < or
	}
	if t.rank() == 2 {
		a, _ := strconv.ParseFloat(string(t), 64)
		b, _ := strconv.ParseFloat(string(o), 64)
		if a != b {
			return a < b
		}
	}
	if t.rank() == 3 {
		var a, b string
		json.Unmarshal([]byte(t), &a)
		json.Unmarshal([]byte(o), &b)
		return a < b
	}
	return t < o
}

// Map is the coverage discovered by one run.
type Map struct {
	Targets            map[Target]struct{}
	Edges              map[Edge]struct{}
	CallsiteDominators map[string]interface{}
}

type jsonMap struct {
	Targets            []jsoniter.RawMessage  `json:"targets"`
	Edges              [][2]uint64            `json:"edges"`
	CallsiteDominators map[string]interface{} `json:"callsite_dominators"`
}

func New() *Map {
	return &Map{
		Targets:            make(map[Target]struct{}),
		Edges:              make(map[Edge]struct{}),
		CallsiteDominators: make(map[string]interface{}),
	}
}

// Add folds other into m: set union on targets and edges, key-wise overwrite
// on dominators.
func (m *Map) Add(other *Map) {
	for t := range other.Targets {
		m.Targets[t] = struct{}{}
	}
	for e := range other.Edges {
		m.Edges[e] = struct{}{}
	}
	for k, v := range other.CallsiteDominators {
		m.CallsiteDominators[k] = v
	}
}

// Merge unions maps in order. Later maps win dominator key collisions.
func Merge(maps ...*Map) *Map {
	merged := New()
	for _, m := range maps {
		merged.Add(m)
	}
	return merged
}

func (m *Map) SortedTargets() []Target {
	out := make([]Target, 0, len(m.Targets))
	for t := range m.Targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func (m *Map) SortedEdges() []Edge {
	out := make([]Edge, 0, len(m.Edges))
	for e := range m.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func (m *Map) Equal(other *Map) bool {
	return reflect.DeepEqual(m.Targets, other.Targets) &&
		reflect.DeepEqual(m.Edges, other.Edges) &&
		reflect.DeepEqual(m.CallsiteDominators, other.CallsiteDominators)
}

func (m *Map) MarshalJSON() ([]byte, error) {
	edges := m.SortedEdges()
	targets := m.SortedTargets()
	j := jsonMap{
		Targets:            make([]jsoniter.RawMessage, len(targets)),
		Edges:              make([][2]uint64, len(edges)),
		CallsiteDominators: m.CallsiteDominators,
	}
	for i, t := range targets {
		j.Targets[i] = jsoniter.RawMessage(t)
	}
	for i, e := range edges {
		j.Edges[i] = [2]uint64{e.From, e.To}
	}
	if j.CallsiteDominators == nil {
		j.CallsiteDominators = map[string]interface{}{}
	}
	return json.Marshal(j)
}

func (m *Map) UnmarshalJSON(data []byte) error {
	var j jsonMap
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	parsed := New()
	for _, raw := range j.Targets {
		t, err := NewTarget(raw)
		if err != nil {
			return err
		}
		parsed.Targets[t] = struct{}{}
	}
	for _, e := range j.Edges {
		parsed.Edges[Edge{From: e[0], To: e[1]}] = struct{}{}
	}
	for k, v := range j.CallsiteDominators {
		parsed.CallsiteDominators[k] = v
	}
	*m = *parsed
	return nil
}

// LoadFile reads a coverage map file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("Failed to read coverage map: %s", err)
	}
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Errorf("Failed to decode coverage map %s: %s", path, err)
	}
	return m, nil
}

// SaveFile writes m with sorted targets and edges.
func SaveFile(path string, m *Map) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.WithMessage(err, "Failed to encode coverage map")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Errorf("Failed to write coverage map: %s", err)
	}
	return nil
}

// MergeFiles unions base with extras and overwrites base with the result.
func MergeFiles(base string, extras ...string) (*Map, error) {
	maps := make([]*Map, 0, len(extras)+1)
	for _, f := range append([]string{base}, extras...) {
		m, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	merged := Merge(maps...)
	if err := SaveFile(base, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
