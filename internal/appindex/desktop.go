package appindex

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppRecord is one launchable application. Records are immutable once
// constructed; refresh replaces whole snapshots, never individual records.
type AppRecord struct {
	Name        string   `json:"name"`
	Exec        string   `json:"exec"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	SourcePath  string   `json:"source_path"`
}

// errSkipped marks entries that parsed fine but must not be shown.
var errSkipped = fmt.Errorf("entry not displayable")

// parseDesktopFile parses a single .desktop file into an AppRecord.
// Entries marked NoDisplay or Hidden return errSkipped.
func parseDesktopFile(path string) (*AppRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rec := &AppRecord{SourcePath: path}
	var genericName string
	var inDesktopEntry bool

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDesktopEntry = strings.Trim(line, "[]") == "Desktop Entry"
			continue
		}
		if !inDesktopEntry {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "Name":
			rec.Name = value
		case "Exec":
			rec.Exec = cleanExecCommand(value)
		case "Icon":
			rec.Icon = value
		case "Comment":
			rec.Description = value
		case "GenericName":
			genericName = value
		case "Keywords":
			rec.Keywords = splitList(value)
		case "NoDisplay", "Hidden":
			if strings.EqualFold(value, "true") {
				return nil, errSkipped
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if rec.Name == "" && rec.Exec == "" {
		return nil, fmt.Errorf("%s: missing required fields", path)
	}
	if rec.Name == "" {
		rec.Name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}
	if rec.Description == "" {
		rec.Description = genericName
	}

	return rec, nil
}

// splitList splits a semicolon-separated desktop-entry list value.
func splitList(value string) []string {
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cleanExecCommand strips %-field codes from an Exec value and normalizes
// whitespace.
func cleanExecCommand(exec string) string {
	exec = removeFieldCodes(exec)
	return strings.Join(strings.Fields(exec), " ")
}

func removeFieldCodes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+1 < len(s) {
			next := s[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					result.WriteByte('%')
				}
				i += 2
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

// scanDir walks one directory and sends every displayable entry to out.
// Unreadable files and subdirectories are skipped, never fatal.
func scanDir(root string, out chan<- *AppRecord) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".desktop") {
			return nil
		}

		rec, err := parseDesktopFile(path)
		if err != nil {
			return nil
		}
		out <- rec
		return nil
	})
}
