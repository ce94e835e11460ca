package output

import (
	"github.com/lukjok/ampdedup/amp"
)

// ReplayRecord is the index entry of one replayed input.
type ReplayRecord struct {
	ContentID string   `json:"content"`
	File      string   `json:"file"`
	PathID    string   `json:"path,omitempty"`
	Amp       *amp.Amp `json:"amp,omitempty"`
	Responses int      `json:"responses"`
	Trace     string   `json:"trace,omitempty"`
	Capture   string   `json:"capture,omitempty"`
	Result    string   `json:"result"`
}
