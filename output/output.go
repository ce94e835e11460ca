package output

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/lukjok/ampdedup/stats"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ResultsFileName = "results.json"
	IndexFileName   = "index.json"
)

type OutputManager interface {
	SaveResults([]stats.Result) error
	SaveIndex([]ReplayRecord) error
	LoadIndex() ([]ReplayRecord, error)
	SaveTrace(contentID string, data []byte) (string, error)
}

var _ OutputManager = (*Filesystem)(nil)

type Filesystem struct {
	OutputBaseDir string
	mu            sync.Mutex
}

func NewFilesystem(baseDir string) *Filesystem {
	return &Filesystem{
		OutputBaseDir: baseDir,
	}
}

func TraceFileName(contentID string) string {
	return "track_" + contentID + ".json"
}

// RawTraceFileName is where the tracing build writes its track file.
func RawTraceFileName(contentID string) string {
	return "track_" + contentID
}

func (f *Filesystem) SaveResults(results []stats.Result) error {
	if results == nil {
		results = []stats.Result{}
	}
	mData, err := json.Marshal(results)
	if err != nil {
		return errors.WithMessage(err, "Failed to encode results")
	}
	return f.save(mData, ResultsFileName)
}

// SaveIndex replaces the replay index with records.
func (f *Filesystem) SaveIndex(records []ReplayRecord) error {
	if records == nil {
		records = []ReplayRecord{}
	}
	mData, err := json.Marshal(records)
	if err != nil {
		return errors.WithMessage(err, "Failed to encode replay index")
	}
	return f.save(mData, IndexFileName)
}

// LoadIndex returns the saved replay index, or nothing when none was saved.
func (f *Filesystem) LoadIndex() ([]ReplayRecord, error) {
	data, err := os.ReadFile(filepath.Join(f.OutputBaseDir, IndexFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Errorf("Failed to read replay index: %s", err)
	}
	var records []ReplayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Errorf("Failed to parse replay index: %s", err)
	}
	return records, nil
}

// SaveTrace stores the JSON event list of a replay and returns its file name.
func (f *Filesystem) SaveTrace(contentID string, data []byte) (string, error) {
	name := TraceFileName(contentID)
	return name, f.save(data, name)
}

func (f *Filesystem) save(data []byte, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.OutputBaseDir, 0755); err != nil {
		return errors.Errorf("Failed to create %s: %s", f.OutputBaseDir, err)
	}
	p := filepath.Join(f.OutputBaseDir, name)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Errorf("Failed to write %s: %s", p, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return errors.Errorf("Failed to replace %s: %s", p, err)
	}
	return nil
}
