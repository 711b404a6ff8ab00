package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IndexFile lists every saved report, one JSON object per line
const IndexFile = "index.jsonl"

// ErrNotFound is returned for an unknown build ID
var ErrNotFound = errors.New("build report not found")

// Store keeps one JSON file per build under a runs directory
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir (usually <state>/runs)
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// IndexEntry is one line of the index
type IndexEntry struct {
	BuildID   string    `json:"build_id"`
	File      string    `json:"file"`
	App       string    `json:"app"`
	Version   string    `json:"version"`
	Outcome   Outcome   `json:"outcome"`
	ExitCode  int       `json:"exit_code"`
	StartTime time.Time `json:"start_time"`
}

// Save writes the report (tmp file then rename) and appends it to the index.
// It returns the report path.
func (s *Store) Save(r *Result) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s_%s.json", r.StartTime.UTC().Format("20060102T150405Z"), r.BuildID)
	path := filepath.Join(s.dir, filename)

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	line, err := json.Marshal(IndexEntry{
		BuildID:   r.BuildID,
		File:      filename,
		App:       r.App,
		Version:   r.Version,
		Outcome:   r.Outcome,
		ExitCode:  r.ExitCode,
		StartTime: r.StartTime,
	})
	if err != nil {
		return path, err
	}
	f, err := os.OpenFile(filepath.Join(s.dir, IndexFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return path, err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return path, err
	}
	return path, nil
}

// index reads every index entry in save order. Malformed lines are skipped.
func (s *Store) index() ([]IndexEntry, error) {
	f, err := os.Open(filepath.Join(s.dir, IndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []IndexEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e IndexEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// Load reads the report of a build
func (s *Store) Load(buildID string) (*Result, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*_"+buildID+".json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, buildID)
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", matches[0], err)
	}
	return &r, nil
}

// Remove deletes the report of a build; the index is left as an append-only log
func (s *Store) Remove(buildID string) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*_"+buildID+".json"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
