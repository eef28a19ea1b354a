// Package statestore archives the storage state primed for each capture so repeat
// consent prompts in recordings can be diagnosed after the fact.
package statestore

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
)

// ErrNotFound is returned for an unknown capture ID
var ErrNotFound = errors.New("storage state not found")

// Entry describes one archived state
type Entry struct {
	CaptureID string    `json:"captureId"`
	URL       string    `json:"url"`
	Cookies   int       `json:"cookies"`
	Origins   int       `json:"origins"`
	SavedAt   time.Time `json:"savedAt"`
	DataPath  string    `json:"-"`
}

type archive struct {
	Entry
	State browser.StorageState `json:"state"`
}

// Store keeps gzip compressed storage states on disk, one file per capture
type Store struct {
	entries   sync.Map // captureID -> *Entry
	storePath string
	mu        sync.Mutex
}

func New(storePath string) (*Store, error) {
	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{storePath: storePath}, nil
}

// Save archives the state primed for captureID
func (s *Store) Save(captureID, url string, state browser.StorageState) (*Entry, error) {
	if captureID == "" {
		return nil, fmt.Errorf("captureId is required")
	}

	entry := &Entry{
		CaptureID: captureID,
		URL:       url,
		Cookies:   len(state.Cookies),
		Origins:   len(state.Origins),
		SavedAt:   time.Now(),
		DataPath:  filepath.Join(s.storePath, captureID+".json.gz"),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeArchive(entry.DataPath, archive{Entry: *entry, State: state}); err != nil {
		return nil, fmt.Errorf("failed to archive storage state: %w", err)
	}

	s.entries.Store(captureID, entry)
	return entry, nil
}

// Get returns the metadata of an archived state
func (s *Store) Get(captureID string) (*Entry, error) {
	value, ok := s.entries.Load(captureID)
	if !ok {
		return nil, ErrNotFound
	}
	return value.(*Entry), nil
}

// Load reads an archived state back
func (s *Store) Load(captureID string) (browser.StorageState, error) {
	entry, err := s.Get(captureID)
	if err != nil {
		return browser.StorageState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := readArchive(entry.DataPath)
	if err != nil {
		return browser.StorageState{}, fmt.Errorf("failed to read storage state: %w", err)
	}
	return a.State, nil
}

// Delete removes an archived state and its file
func (s *Store) Delete(captureID string) error {
	entry, err := s.Get(captureID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(entry.DataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete storage state: %w", err)
	}
	s.entries.Delete(captureID)
	return nil
}

func writeArchive(path string, a archive) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	if err := json.NewEncoder(gzWriter).Encode(a); err != nil {
		gzWriter.Close()
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return err
	}
	return file.Close()
}

func readArchive(path string) (archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return archive{}, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return archive{}, err
	}
	defer gzReader.Close()

	var a archive
	if err := json.NewDecoder(gzReader).Decode(&a); err != nil {
		return archive{}, err
	}
	return a, nil
}
