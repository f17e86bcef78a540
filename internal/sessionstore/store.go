// Package sessionstore is the thin persistence adapter spec §6 calls for:
// one JSON file per chat session under <home>/.scrutari/sessions/<id>.json,
// keyed by session id since scrutari sessions are not scoped to a git
// repository.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/scrutari/internal/chatsession"
)

// Store persists chatsession.Session values as JSON files.
type Store struct {
	dir string
}

// New builds a Store rooted at <configDir>/sessions (configDir is typically
// <home>/.scrutari).
func New(configDir string) *Store {
	return &Store{dir: filepath.Join(configDir, "sessions")}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", id))
}

// Save writes sess to disk, creating the sessions directory if needed.
func (s *Store) Save(sess *chatsession.Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("sessionstore: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: marshaling session: %w", err)
	}

	if err := os.WriteFile(s.path(sess.ID), data, 0644); err != nil {
		return fmt.Errorf("sessionstore: writing session file: %w", err)
	}
	return nil
}

// Load reads a session by id.
func (s *Store) Load(id string) (*chatsession.Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading session file: %w", err)
	}

	var sess chatsession.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("sessionstore: unmarshaling session: %w", err)
	}
	return &sess, nil
}

// Meta is the lightweight listing projection of a session.
type Meta struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	TotalCostUSD float64
}

// List returns every saved session's metadata, sorted by UpdatedAt
// descending. Unreadable or malformed files are skipped, never deleted.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []Meta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: listing directory: %w", err)
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var sess chatsession.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		metas = append(metas, Meta{
			ID:           sess.ID,
			Title:        sess.Title,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
			TotalCostUSD: sess.TotalCostUSD,
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes a session's file. Missing files are not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionstore: deleting session file: %w", err)
	}
	return nil
}
