package selector

import (
	"encoding/hex"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/models"
	"github.com/lukjok/ampdedup/trace"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Table keeps the best amplifier per trace fingerprint.
type Table struct {
	entries   map[string]*Best
	processed map[string]bool
}

func NewTable() *Table {
	return &Table{
		entries:   make(map[string]*Best),
		processed: make(map[string]bool),
	}
}

// Offer records a for fp if it is the first sample of fp or amplifies strictly
// more than the kept one. It reports whether the table changed. Samples
// without request bytes are refused with models.ErrDegenerateAmp.
func (t *Table) Offer(fp trace.Fingerprint, a amp.Amp, pathID string) (bool, error) {
	if a.Degenerate() {
		return false, errors.Wrapf(models.ErrDegenerateAmp, "Path %s has no request bytes", pathID)
	}
	cur, ok := t.entries[fp.Key()]
	if !ok {
		t.entries[fp.Key()] = &Best{Fingerprint: fp, Amp: a, PathID: pathID}
		return true, nil
	}
	c := amp.Compare(a, cur.Amp)
	if c > 0 || (c == 0 && pathID < cur.PathID) {
		cur.Amp = a
		cur.PathID = pathID
		cur.Input = nil
		return true, nil
	}
	return false, nil
}

// Processed reports whether the content identity was already handled.
func (t *Table) Processed(contentID string) bool {
	return t.processed[contentID]
}

func (t *Table) MarkProcessed(contentID string) {
	t.processed[contentID] = true
}

func (t *Table) Get(fp trace.Fingerprint) (*Best, bool) {
	b, ok := t.entries[fp.Key()]
	return b, ok
}

func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns the kept representatives ordered by fingerprint.
func (t *Table) Entries() []*Best {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Best, len(keys))
	for i, k := range keys {
		out[i] = t.entries[k]
	}
	return out
}

// Amplifying counts fingerprints whose best sample has an L2 BAF above one.
func (t *Table) Amplifying() int {
	n := 0
	for _, b := range t.entries {
		if b.Amp.Out().Size(amp.L2) > b.Amp.In().Size(amp.L2) {
			n++
		}
	}
	return n
}

// Max returns the greatest kept sample.
func (t *Table) Max() (*Best, bool) {
	var best *Best
	for _, b := range t.Entries() {
		if best == nil || amp.Compare(b.Amp, best.Amp) > 0 {
			best = b
		}
	}
	return best, best != nil
}

func (t *Table) MarshalJSON() ([]byte, error) {
	entries := t.Entries()
	out := make([]jsonBest, len(entries))
	for i, b := range entries {
		out[i] = jsonBest{
			Trace: b.Fingerprint,
			Amp:   b.Amp,
			Path:  b.PathID,
			Input: hex.EncodeToString(b.Input),
		}
	}
	return json.Marshal(out)
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var in []jsonBest
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	entries := make(map[string]*Best, len(in))
	for _, j := range in {
		input, err := hex.DecodeString(j.Input)
		if err != nil {
			return errors.Errorf("Invalid representative input for path %s: %s", j.Path, err)
		}
		if len(input) == 0 {
			input = nil
		}
		entries[j.Trace.Key()] = &Best{
			Fingerprint: j.Trace,
			Amp:         j.Amp,
			PathID:      j.Path,
			Input:       input,
		}
	}
	t.entries = entries
	if t.processed == nil {
		t.processed = make(map[string]bool)
	}
	return nil
}
