package reconcile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"chorecal/internal/remote"
)

var errNoSnapshot = errors.New("no snapshot")

// snapshot is the last remote state seen by a successful pull.
type snapshot struct {
	Account string                `json:"account"`
	SavedAt time.Time             `json:"saved_at"`
	Tasks   []remote.TaskRecord   `json:"tasks"`
	Persons []remote.PersonRecord `json:"persons"`
}

func readSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snapshot{}, errNoSnapshot
		}
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

// writeSnapshot replaces the file at path atomically via a temp file in the
// same directory. The result is readable by the owner only.
func writeSnapshot(path string, snap snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".chorecal-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
