package trace

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (l *Label) UnmarshalJSON(data []byte) error {
	v := string(bytes.TrimSpace(data))
	switch v {
	case "null", "false", "":
		*l = false
		return nil
	case "true":
		*l = true
		return nil
	}
	if s, err := strconv.Unquote(v); err == nil {
		v = s
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.Errorf("Invalid label value %s", data)
	}
	*l = n != 0
	return nil
}

// Retained reports whether the condition takes part in the fingerprint.
func (c *CondBase) Retained() bool {
	return bool(c.Lb1) || bool(c.Lb2) || c.Op == CondLenOp
}

func (c *CondBase) Step() Step {
	return Step{CmpID: c.CmpID, Condition: c.Condition, Order: c.Order >> 16}
}

// ParseEvents decodes a raw trace: a JSON list of event records.
func ParseEvents(r io.Reader) ([]Event, error) {
	var events []Event
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, errors.Wrapf(models.ErrMalformedArtifact, "Failed to decode trace: %s", err)
	}
	return events, nil
}

// LoadFile reads and canonicalizes a trace file.
func LoadFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, errors.Errorf("Failed to open trace file: %s", err)
	}
	defer f.Close()

	events, err := ParseEvents(f)
	if err != nil {
		return Fingerprint{}, errors.WithMessage(err, path)
	}
	return Canonicalize(events), nil
}

// Canonicalize reduces a raw event sequence to its fingerprint. Events without
// a condition record and unlabeled non-length conditions are dropped, the rest
// are grouped per thread in arrival order.
func Canonicalize(events []Event) Fingerprint {
	perThread := make(map[int32]ThreadPath)
	for _, ev := range events {
		if ev.Base == nil || !ev.Base.Retained() {
			continue
		}
		tid := ev.Base.ThreadID
		perThread[tid] = append(perThread[tid], ev.Base.Step())
	}

	threads := make([]ThreadPath, 0, len(perThread))
	for _, p := range perThread {
		threads = append(threads, p)
	}
	return NewFingerprint(threads)
}

// NewFingerprint builds a fingerprint from per-thread paths in any order.
func NewFingerprint(threads []ThreadPath) Fingerprint {
	sorted := make([]ThreadPath, 0, len(threads))
	for _, t := range threads {
		if len(t) > 0 {
			sorted = append(sorted, append(ThreadPath(nil), t...))
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return comparePaths(sorted[i], sorted[j]) < 0
	})

	uniq := sorted[:0]
	for i, t := range sorted {
		if i > 0 && comparePaths(t, sorted[i-1]) == 0 {
			continue
		}
		uniq = append(uniq, t)
	}

	return Fingerprint{threads: uniq, key: encodeKey(uniq)}
}

func compareSteps(a, b Step) int {
	switch {
	case a.CmpID != b.CmpID:
		return cmpUint32(a.CmpID, b.CmpID)
	case a.Condition != b.Condition:
		return cmpUint32(a.Condition, b.Condition)
	default:
		return cmpUint32(a.Order, b.Order)
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func comparePaths(a, b ThreadPath) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareSteps(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func encodeKey(threads []ThreadPath) string {
	var sb strings.Builder
	for i, t := range threads {
		if i > 0 {
			sb.WriteByte(';')
		}
		for j, s := range t {
			if j > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%d:%d:%d", s.CmpID, s.Condition, s.Order)
		}
	}
	return sb.String()
}

// Key is an exact string identity of the fingerprint, usable as a map key.
func (f Fingerprint) Key() string {
	return f.key
}

// ID is a short hash of Key for display.
func (f Fingerprint) ID() uint64 {
	return xxhash.Sum64String(f.key)
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", f.ID())
}

func (f Fingerprint) Threads() []ThreadPath {
	out := make([]ThreadPath, len(f.threads))
	for i, t := range f.threads {
		out[i] = append(ThreadPath(nil), t...)
	}
	return out
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.key == other.key
}

func (f Fingerprint) Empty() bool {
	return len(f.threads) == 0
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint32{s.CmpID, s.Condition, s.Order})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var v [3]uint32
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Step{CmpID: v[0], Condition: v[1], Order: v[2]}
	return nil
}

func (f Fingerprint) MarshalJSON() ([]byte, error) {
	threads := f.threads
	if threads == nil {
		threads = []ThreadPath{}
	}
	return json.Marshal(threads)
}

func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var threads []ThreadPath
	if err := json.Unmarshal(data, &threads); err != nil {
		return err
	}
	*f = NewFingerprint(threads)
	return nil
}
