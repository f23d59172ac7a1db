package history

import (
	"encoding/json"
	"os"
)

// loadJSON reads path into v. A missing file returns os.ErrNotExist; a
// corrupted file returns the unmarshal error. Callers degrade to an empty
// table either way and never delete the file.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// saveJSON writes v to path atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated table behind.
func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
