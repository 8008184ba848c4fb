// Package store persists the named JSON documents the tuner keeps between requests:
// session, profile, channel catalog, last created link, playlist text + metadata, hit log.
//
// Every adapter replaces a document wholesale; readers never observe a partial write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no document exists for key.
var ErrNotFound = errors.New("store: not found")

// Document keys.
const (
	KeySession      = "session"
	KeyProfile      = "profile"
	KeyChannels     = "channels"
	KeyCreatedLink  = "created_link"
	KeyPlaylist     = "playlist"
	KeyPlaylistMeta = "playlist_meta"
	KeyHits         = "playlist_hits"
)

// Document is a stored blob plus the time it was last written.
type Document struct {
	Data    []byte
	ModTime time.Time
}

// Store loads and saves whole documents by key.
type Store interface {
	Load(ctx context.Context, key string) (Document, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// LoadJSON decodes the document at key into v. It returns ok=false when the document is
// absent, unreadable or not valid JSON; callers treat all three as "no document".
func LoadJSON(ctx context.Context, s Store, key string, v interface{}) (modTime time.Time, ok bool) {
	doc, err := s.Load(ctx, key)
	if err != nil {
		return time.Time{}, false
	}
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return time.Time{}, false
	}
	return doc.ModTime, true
}

// SaveJSON encodes v (indented) and saves it at key.
func SaveJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store %s: encode: %w", key, err)
	}
	return s.Save(ctx, key, data)
}

// Options selects and configures an adapter for Open.
type Options struct {
	Kind        string // "file" (default), "sqlite", "redis", "memory"
	Dir         string
	SQLitePath  string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// Open returns the adapter named by opts.Kind.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Kind {
	case "", "file":
		return NewFile(opts.Dir)
	case "sqlite":
		return OpenSQLite(ctx, opts.SQLitePath)
	case "redis":
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("store: unknown kind %q", opts.Kind)
}
