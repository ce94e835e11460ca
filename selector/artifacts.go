package selector

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
)

var artifactNameRe = regexp.MustCompile(`^amp_([0-9]+(?:\.[0-9]+)?)_([0-9a-fA-F]{1,16})_([0-9a-fA-F]{32})$`)

// ParseArtifactName decodes amp_<factor>_<path>_<content>. Any other shape is
// rejected.
func ParseArtifactName(name string) (ArtifactName, error) {
	m := artifactNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return ArtifactName{}, errors.Wrapf(models.ErrMalformedArtifact, "Unrecognized artifact name %q", name)
	}
	factor, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ArtifactName{}, errors.Wrapf(models.ErrMalformedArtifact, "Invalid factor in %q", name)
	}
	return ArtifactName{
		Factor:    factor,
		PathID:    strings.ToLower(m[2]),
		ContentID: strings.ToLower(m[3]),
	}, nil
}

// ContentID is the MD5 digest of raw input bytes.
func ContentID(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func listFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Errorf("Failed to list %s: %s", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ListAmpFiles returns the amplification sample files of dir, sorted by name.
func ListAmpFiles(dir string) ([]string, error) {
	return listFiles(dir, AmpFilePrefix)
}

// ScanAmps reads every amplification sample in dir. Files whose name or
// content does not match the naming scheme are skipped.
func ScanAmps(dir string, logger *slog.Logger) ([]Candidate, error) {
	files, err := ListAmpFiles(dir)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(files))
	for _, f := range files {
		name, err := ParseArtifactName(f)
		if err != nil {
			logger.Warn("Skipping artifact", "file", f, tint.Err(err))
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Warn("Failed to read artifact", "file", f, tint.Err(err))
			continue
		}
		if id := ContentID(data); id != name.ContentID {
			logger.Warn("Skipping artifact with mismatching content identity", "file", f, "digest", id)
			continue
		}
		cands = append(cands, Candidate{
			File:      f,
			PathID:    name.PathID,
			ContentID: name.ContentID,
			Factor:    name.Factor,
			Input:     data,
		})
	}
	return cands, nil
}

// ScanQueue reads the fuzzer queue inputs of dir. They carry no path identity.
func ScanQueue(dir string, logger *slog.Logger) ([]Candidate, error) {
	files, err := listFiles(dir, QueueFilePrefix)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Warn("Failed to read queue input", "file", f, tint.Err(err))
			continue
		}
		cands = append(cands, Candidate{
			File:      f,
			ContentID: ContentID(data),
			Input:     data,
		})
	}
	return cands, nil
}
