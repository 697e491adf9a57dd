// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the offline mirror of server-side sessions. The
// cache is written opportunistically whenever fresh data passes through
// the client and read back when the backend is unreachable, so the last
// known session list and transcripts stay browsable.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/util"
)

// ErrNotCached is returned when the requested data has never been cached.
var ErrNotCached = errors.New("not in offline cache")

// sessionsFile holds the session listing inside the cache directory.
const sessionsFile = "sessions.json"

// transcriptsDir holds per-session transcript files.
const transcriptsDir = "transcripts"

// DefaultMaxTranscripts bounds the number of cached transcripts.
const DefaultMaxTranscripts = 100

// =============================================================================
// CACHE
// =============================================================================

// Cache mirrors session metadata and transcripts as JSON files under one
// directory. It satisfies the controller's cache hook on the write side;
// the read side serves offline listings.
type Cache struct {
	// BaseDir is the cache directory, default ~/.agentdeck/cache/.
	BaseDir string

	// MaxTranscripts limits stored transcripts (0 = unlimited).
	MaxTranscripts int
}

// NewCache creates a cache rooted in the user's home directory.
func NewCache() (*Cache, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewCacheWithDir(filepath.Join(homeDir, ".agentdeck", "cache"))
}

// NewCacheWithDir creates a cache rooted at baseDir.
func NewCacheWithDir(baseDir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, transcriptsDir), 0755); err != nil {
		return nil, err
	}
	return &Cache{
		BaseDir:        baseDir,
		MaxTranscripts: DefaultMaxTranscripts,
	}, nil
}

// =============================================================================
// WRITE SIDE
// =============================================================================

// PutSessions replaces the cached session listing.
func (c *Cache) PutSessions(metas []model.Meta) error {
	data, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	return util.AtomicWriteFile(filepath.Join(c.BaseDir, sessionsFile), data, 0644)
}

// PutTranscript replaces the cached transcript of one session.
func (c *Cache) PutTranscript(sessionID string, msgs []*model.Message) error {
	path, err := c.transcriptPath(sessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return err
	}

	if c.MaxTranscripts > 0 {
		c.enforceLimit()
	}
	return nil
}

// DeleteTranscript removes one cached transcript. Missing files are not an
// error: the session may never have been viewed offline.
func (c *Cache) DeleteTranscript(sessionID string) error {
	path, err := c.transcriptPath(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear removes the whole cache directory contents.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(filepath.Join(c.BaseDir, transcriptsDir)); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(c.BaseDir, sessionsFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(filepath.Join(c.BaseDir, transcriptsDir), 0755)
}

// enforceLimit evicts the oldest transcripts when over the cap.
func (c *Cache) enforceLimit() {
	dir := filepath.Join(c.BaseDir, transcriptsDir)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= c.MaxTranscripts {
		return
	}

	type aged struct {
		name string
		mod  int64
	}
	var files []aged
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, aged{name: entry.Name(), mod: info.ModTime().UnixNano()})
	}
	if len(files) <= c.MaxTranscripts {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })
	for _, f := range files[:len(files)-c.MaxTranscripts] {
		os.Remove(filepath.Join(dir, f.name))
	}
}

// =============================================================================
// READ SIDE
// =============================================================================

// Sessions returns the cached session listing, most recently updated
// first.
func (c *Cache) Sessions() ([]model.Meta, error) {
	data, err := os.ReadFile(filepath.Join(c.BaseDir, sessionsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCached
		}
		return nil, err
	}

	var metas []model.Meta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("corrupt session cache: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Transcript returns the cached transcript of one session.
func (c *Cache) Transcript(sessionID string) ([]*model.Message, error) {
	path, err := c.transcriptPath(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCached
		}
		return nil, err
	}

	var msgs []*model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("corrupt transcript cache: %w", err)
	}
	return msgs, nil
}

// Search returns cached sessions whose title matches the query,
// case-insensitively.
func (c *Cache) Search(query string) ([]model.Meta, error) {
	all, err := c.Sessions()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var results []model.Meta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			results = append(results, meta)
		}
	}
	return results, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// transcriptPath maps a session ID to its cache file. IDs come from the
// server, so path separators are rejected rather than trusted.
func (c *Cache) transcriptPath(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(c.BaseDir, transcriptsDir, sessionID+".json"), nil
}
