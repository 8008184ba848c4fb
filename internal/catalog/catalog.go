// Package catalog holds the portal channel list and the rules that give every channel a
// human-readable category. Channels are addressed by their position in the list; that
// index is what playlists and /getlink use, so the list is only ever replaced whole.
package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/snapetech/stalkertuner/internal/store"
)

// Unknown is the category of channels nothing else could be resolved for.
const Unknown = "Unknown"

// Channel is one portal channel record. Portals add arbitrary fields; the ones this
// package reads are cmd/cmds, name/title, logo, the category-like fields and the genre id fields.
type Channel map[string]interface{}

// categoryFields are human-readable category fields, in precedence order.
var categoryFields = []string{"category", "genres_str", "group", "group-title", "tv_genre_name", "genre_name"}

// idFields are genre/category id fields, in precedence order.
var idFields = []string{"tv_genre_id", "genre_id", "category_id"}

// Command returns the channel's raw playback command: cmd, or the url/command/cmd of the
// first cmds entry. Empty when the channel has none.
func (c Channel) Command() string {
	if s, ok := scalarString(c["cmd"]); ok && !isEmpty(c["cmd"]) {
		return strings.TrimSpace(s)
	}
	list, ok := c["cmds"].([]interface{})
	if !ok || len(list) == 0 {
		return ""
	}
	first, ok := list[0].(map[string]interface{})
	if !ok {
		return ""
	}
	for _, k := range []string{"url", "command", "cmd"} {
		if v, present := first[k]; present && v != nil {
			if s, ok := scalarString(v); ok && !isEmpty(v) {
				return strings.TrimSpace(s)
			}
			return ""
		}
	}
	return ""
}

// Name returns name, then title, then "Channel <i>", with line breaks flattened to spaces.
func (c Channel) Name(i int) string {
	name := ""
	for _, k := range []string{"name", "title"} {
		if s, ok := scalarString(c[k]); ok && strings.TrimSpace(s) != "" {
			name = s
			break
		}
	}
	if name == "" {
		name = "Channel " + strconv.Itoa(i)
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(name))
}

// Logo returns the logo URL or "".
func (c Channel) Logo() string {
	s, _ := c["logo"].(string)
	return s
}

// Group returns the category for playlist grouping: category, then the other
// category-like fields, then Unknown.
func (c Channel) Group() string {
	if s := c.explicitCategory(); s != "" {
		return s
	}
	return Unknown
}

func (c Channel) explicitCategory() string {
	for _, f := range categoryFields {
		v := c[f]
		s, ok := v.(string)
		if !ok || isEmpty(v) {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Catalog is the current ordered channel list.
type Catalog struct {
	mu       sync.RWMutex
	Channels []Channel
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// Replace swaps in a new channel list.
func (c *Catalog) Replace(channels []Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels = channels
}

// Snapshot returns a copy of the channel slice for read-only use.
func (c *Catalog) Snapshot() []Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Channel, len(c.Channels))
	copy(out, c.Channels)
	return out
}

// Len returns the number of channels.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Channels)
}

// At returns the channel at index i.
func (c *Catalog) At(i int) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.Channels) {
		return nil, false
	}
	return c.Channels[i], true
}

// Encode renders channels as the persisted catalog document {"js":{"data":[...]}}.
func Encode(channels []Channel) ([]byte, error) {
	if channels == nil {
		channels = []Channel{}
	}
	doc := map[string]interface{}{"js": map[string]interface{}{"data": channels}}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode reads a catalog document (or any channel-list shape the portal returns).
func Decode(data []byte) ([]Channel, error) {
	root, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return Merge(ChannelList(root), nil), nil
}

// ContentHash returns the hex SHA-256 of a persisted catalog document.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Save persists the catalog document and returns its content hash.
func (c *Catalog) Save(ctx context.Context, s store.Store) (string, error) {
	data, err := Encode(c.Snapshot())
	if err != nil {
		return "", fmt.Errorf("catalog save: encode: %w", err)
	}
	if err := s.Save(ctx, store.KeyChannels, data); err != nil {
		return "", fmt.Errorf("catalog save: %w", err)
	}
	return ContentHash(data), nil
}

// Load replaces the catalog with the persisted document and returns its content hash.
// A missing or corrupt document returns store.ErrNotFound and leaves the catalog empty.
func (c *Catalog) Load(ctx context.Context, s store.Store) (string, error) {
	doc, err := s.Load(ctx, store.KeyChannels)
	if err != nil {
		c.Replace(nil)
		return "", err
	}
	channels, err := Decode(doc.Data)
	if err != nil {
		c.Replace(nil)
		return "", store.ErrNotFound
	}
	c.Replace(channels)
	return ContentHash(doc.Data), nil
}

// StoredHash returns the content hash of the persisted catalog document, or "" when absent.
func StoredHash(ctx context.Context, s store.Store) string {
	doc, err := s.Load(ctx, store.KeyChannels)
	if err != nil {
		return ""
	}
	return ContentHash(doc.Data)
}

// DecodeJSON parses a portal body, keeping numbers as json.Number so ids survive untouched.
// A leading UTF-8 BOM and surrounding whitespace are ignored.
func DecodeJSON(data []byte) (interface{}, error) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\xef\xbb\xbf"))
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}
