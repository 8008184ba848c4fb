package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileNames keeps the on-disk names operators already know; other keys map to <key>.json.
var fileNames = map[string]string{
	KeySession:      "session.json",
	KeyProfile:      "profile_response.json",
	KeyChannels:     "raw_channels.json",
	KeyCreatedLink:  "created_link.json",
	KeyPlaylist:     "playlist.m3u",
	KeyPlaylistMeta: "playlist.meta.json",
	KeyHits:         "playlist_hits.json",
}

// File stores each document as one file in Dir.
type File struct {
	Dir string
}

// NewFile creates dir if needed and returns a File store rooted there.
func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("file store: mkdir %s: %w", dir, err)
	}
	return &File{Dir: dir}, nil
}

// Path returns the file backing key.
func (f *File) Path(key string) string {
	name, ok := fileNames[key]
	if !ok {
		name = filepath.Base(filepath.Clean(key)) + ".json"
	}
	return filepath.Join(f.Dir, name)
}

func (f *File) Load(_ context.Context, key string) (Document, error) {
	path := f.Path(key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return Document{Data: data, ModTime: info.ModTime()}, nil
}

// Save writes data using a temp-file-then-rename strategy
// so readers never see a partially-written file (atomic on most Unix filesystems).
func (f *File) Save(_ context.Context, key string, data []byte) error {
	path := f.Path(key)
	tmp, err := os.CreateTemp(f.Dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("file store save %s: create temp: %w", key, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("file store save %s: write: %w", key, writeErr)
		}
		return fmt.Errorf("file store save %s: close: %w", key, closeErr)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store save %s: chmod: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store save %s: rename: %w", key, err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.Path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *File) Close() error { return nil }
