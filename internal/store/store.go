// Package store persists recording metadata as sidecar JSON files and
// answers the scheduler's candidate queries. No storage detail beyond the
// RecordingStore interface crosses into the audio packages.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recording lifecycle statuses.
const (
	StatusRecording   = "recording"
	StatusRecorded    = "recorded"
	StatusTranscribed = "transcribed"
)

// Artifact path field names used with UpdateArtifactPaths.
const (
	FieldMicrophone = "microphone_path"
	FieldSystem     = "system_path"
	FieldMixed      = "stereo_path"
)

// ErrNotFound is returned when a recording id is unknown to the store.
var ErrNotFound = errors.New("store: recording not found")

// RecordingRef is one recording's metadata.
type RecordingRef struct {
	ID        string            `json:"id"`
	Directory string            `json:"directory"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// NewRef creates a RecordingRef for the given directory with a fresh id.
func NewRef(directory, status string) RecordingRef {
	return RecordingRef{
		ID:        uuid.New().String(),
		Directory: directory,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		Artifacts: map[string]string{},
	}
}

// RecordingStore is the metadata boundary consumed by the scheduler.
type RecordingStore interface {
	// Candidates returns recordings with the given status whose directory
	// still exists on disk, oldest first.
	Candidates(status string) ([]RecordingRef, error)
	// UpdateArtifactPaths merges the given field->path entries into the
	// recording's stored artifact paths.
	UpdateArtifactPaths(id string, paths map[string]string) error
}

const metaFilename = "recording.meta.json"

// FileStore keeps one recording.meta.json sidecar per recording directory
// under a common root. Writes are atomic (temp file + rename).
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore rooted at root, creating it if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Put writes (or rewrites) the sidecar for ref inside ref.Directory.
func (s *FileStore) Put(ref RecordingRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeMeta(filepath.Join(ref.Directory, metaFilename), ref)
}

// Get loads one recording by id.
func (s *FileStore) Get(id string) (RecordingRef, error) {
	refs, err := s.scan()
	if err != nil {
		return RecordingRef{}, err
	}
	for _, ref := range refs {
		if ref.ID == id {
			return ref, nil
		}
	}
	return RecordingRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Candidates implements RecordingStore.
func (s *FileStore) Candidates(status string) ([]RecordingRef, error) {
	refs, err := s.scan()
	if err != nil {
		return nil, err
	}
	var out []RecordingRef
	for _, ref := range refs {
		if ref.Status != status || ref.Directory == "" {
			continue
		}
		if info, err := os.Stat(ref.Directory); err != nil || !info.IsDir() {
			continue
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateArtifactPaths implements RecordingStore.
func (s *FileStore) UpdateArtifactPaths(id string, paths map[string]string) error {
	ref, err := s.Get(id)
	if err != nil {
		return err
	}
	if ref.Artifacts == nil {
		ref.Artifacts = map[string]string{}
	}
	for field, path := range paths {
		ref.Artifacts[field] = path
	}
	return s.Put(ref)
}

// scan walks the root's immediate subdirectories for sidecar files.
// Unreadable or malformed sidecars are skipped rather than failing the scan.
func (s *FileStore) scan() ([]RecordingRef, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan store root: %w", err)
	}
	var refs []RecordingRef
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		metaPath := filepath.Join(s.root, e.Name(), metaFilename)
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var ref RecordingRef
		if err := json.Unmarshal(data, &ref); err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func writeMeta(metaPath string, ref RecordingRef) error {
	dir := filepath.Dir(metaPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ref); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory RecordingStore used in tests and as a fallback
// when no metadata root is configured.
type MemoryStore struct {
	mu   sync.Mutex
	refs map[string]RecordingRef
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{refs: map[string]RecordingRef{}}
}

// Put stores or replaces a recording.
func (s *MemoryStore) Put(ref RecordingRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref.ID] = ref
}

// Get loads one recording by id.
func (s *MemoryStore) Get(id string) (RecordingRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok {
		return RecordingRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ref, nil
}

// Candidates implements RecordingStore.
func (s *MemoryStore) Candidates(status string) ([]RecordingRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecordingRef
	for _, ref := range s.refs {
		if ref.Status != status || ref.Directory == "" {
			continue
		}
		if info, err := os.Stat(ref.Directory); err != nil || !info.IsDir() {
			continue
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateArtifactPaths implements RecordingStore.
func (s *MemoryStore) UpdateArtifactPaths(id string, paths map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if ref.Artifacts == nil {
		ref.Artifacts = map[string]string{}
	}
	for field, path := range paths {
		ref.Artifacts[field] = path
	}
	s.refs[id] = ref
	return nil
}
