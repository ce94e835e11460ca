package util

import (
	"net"
	"os"
	"path/filepath"

	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
)

// FindDirsWithFile walks root and returns every directory that contains
// fileName, in walk order.
func FindDirsWithFile(root, fileName string) ([]string, error) {
	var dirs []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && FileExists(filepath.Join(path, fileName)) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("Failed to enumerate %s: %s", root, err)
	}
	return dirs, nil
}

func DirectoryExists(path string) bool {
	if pathAbs, err := filepath.Abs(path); err != nil {
		return false
	} else if fileInfo, err := os.Stat(pathAbs); os.IsNotExist(err) || !fileInfo.IsDir() {
		return false
	}

	return true
}

func FileExists(filepath string) bool {
	fileinfo, err := os.Stat(filepath)

	if err != nil {
		return false
	}
	// Return false if the fileinfo says the file path is a directory.
	return !fileinfo.IsDir()
}

func ConvertError(err error) models.AmpFuzzError {
	if err == nil {
		return models.Success
	}
	switch {
	case errors.Is(err, models.ErrMalformedArtifact):
		return models.MalformedArtifact
	case errors.Is(err, models.ErrNotReady):
		return models.NotReady
	case errors.Is(err, models.ErrNoTrace):
		return models.NoTrace
	case errors.Is(err, models.ErrDegenerateAmp):
		return models.DegenerateAmp
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.NetworkError
	}
	return models.UnknownError
}
