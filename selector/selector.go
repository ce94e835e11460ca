package selector

import (
	"bytes"
	"os"
	"sort"

	"github.com/lukjok/ampdedup/amp"
	"github.com/pkg/errors"
)

// ResolveAmps attaches the recorded Amp of a candidate's path when the
// candidate is the input that produced it, i.e. its length equals the
// recorded request size.
func ResolveAmps(cands []Candidate, pathAmps map[string]amp.Amp) {
	for i := range cands {
		c := &cands[i]
		if c.Amp != nil {
			continue
		}
		a, ok := pathAmps[c.PathID]
		if !ok || a.In().Size(amp.L7) != len(c.Input) {
			continue
		}
		c.Amp = &a
	}
}

func ranked(c Candidate) bool {
	return c.Amp != nil && !c.Amp.Degenerate()
}

// Better reports whether a is a strictly better representative than b:
// greater Amp, then shorter input, then smaller bytes, then file name.
func Better(a, b Candidate) bool {
	ra, rb := ranked(a), ranked(b)
	switch {
	case ra && !rb:
		return true
	case !ra && rb:
		return false
	case ra && rb:
		if c := amp.Compare(*a.Amp, *b.Amp); c != 0 {
			return c > 0
		}
	default:
		if a.Factor != b.Factor {
			return a.Factor > b.Factor
		}
	}
	if len(a.Input) != len(b.Input) {
		return len(a.Input) < len(b.Input)
	}
	if c := bytes.Compare(a.Input, b.Input); c != 0 {
		return c < 0
	}
	return a.File < b.File
}

// SelectPerPath keeps the best candidate per path identity.
func SelectPerPath(cands []Candidate) map[string]Candidate {
	best := make(map[string]Candidate)
	for _, c := range cands {
		if c.PathID == "" {
			continue
		}
		if cur, ok := best[c.PathID]; !ok || Better(c, cur) {
			best[c.PathID] = c
		}
	}
	return best
}

// Todo lists the inputs to replay: the representative of every path plus the
// queue inputs that are no amplification sample. Each content identity appears
// once.
func Todo(amps, queue []Candidate) []Candidate {
	perPath := SelectPerPath(amps)
	paths := make([]string, 0, len(perPath))
	for p := range perPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ampContent := make(map[string]bool, len(amps))
	for _, c := range amps {
		ampContent[c.ContentID] = true
	}

	seen := make(map[string]bool)
	todo := make([]Candidate, 0, len(paths)+len(queue))
	for _, p := range paths {
		c := perPath[p]
		if seen[c.ContentID] {
			continue
		}
		seen[c.ContentID] = true
		todo = append(todo, c)
	}

	rest := append([]Candidate(nil), queue...)
	sort.Slice(rest, func(i, j int) bool { return rest[i].File < rest[j].File })
	for _, c := range rest {
		if ampContent[c.ContentID] || seen[c.ContentID] {
			continue
		}
		seen[c.ContentID] = true
		todo = append(todo, c)
	}
	return todo
}

// MaxPathAmp returns the greatest non-degenerate Amp recorded for any of the
// given path identities. Ties go to the smaller path identity.
func MaxPathAmp(pathIDs []string, pathAmps map[string]amp.Amp) (amp.Amp, string, bool) {
	var (
		best  amp.Amp
		bestP string
		found bool
	)
	for _, p := range pathIDs {
		a, ok := pathAmps[p]
		if !ok || a.Degenerate() {
			continue
		}
		if !found {
			best, bestP, found = a, p, true
			continue
		}
		c := amp.Compare(a, best)
		if c > 0 || (c == 0 && p < bestP) {
			best, bestP = a, p
		}
	}
	return best, bestP, found
}

// LoadRepresentative picks, among the sample files of a path, the first one in
// reverse name order whose length matches the request size of a.
func LoadRepresentative(files []string, a amp.Amp) ([]byte, error) {
	sorted := append([]string(nil), files...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	want := a.In().Size(amp.L7)
	for _, f := range sorted {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Errorf("Failed to read representative %s: %s", f, err)
		}
		if len(data) == want {
			return data, nil
		}
	}
	return nil, nil
}
