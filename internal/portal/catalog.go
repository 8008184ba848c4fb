package portal

import (
	"context"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/store"
)

// genreEndpoints are probed in order; portal variants answer different ones.
var genreEndpoints = []string{
	"type=itv&action=get_genres&JsHttpRequest=1-xml",
	"type=itv&action=get_genres&JsHttpRequest=1-utf8",
	"type=itv&action=get_all_genres&JsHttpRequest=1-xml",
	"type=stb&action=get_genres&JsHttpRequest=1-xml",
	"type=itv&action=get_categories&JsHttpRequest=1-xml",
	"type=itv&action=get_all_categories&JsHttpRequest=1-xml",
}

const channelsQuery = "type=itv&action=get_all_channels&JsHttpRequest=1-xml"

// ResolveGenres returns the category id -> name map. It syncs the profile first (some
// portals only answer genre calls after get_profile), then returns the first endpoint's
// non-empty map. When every endpoint fails it synthesizes one from channels (may be nil).
// It never fails; an empty map means "no categories".
func (c *Client) ResolveGenres(ctx context.Context, sess *Session, channels []interface{}) catalog.GenreMap {
	c.syncProfile(ctx, sess)

	log.Printf("Fetching genres/categories")
	for _, q := range genreEndpoints {
		resp, err := c.get(ctx, queryAction(q), c.loadURL(q), sess.Headers, c.Retry)
		if err != nil {
			log.WithError(err).Warnf("Genres: %s failed", q)
			continue
		}
		root, err := catalog.DecodeJSON(resp.Body)
		if err != nil {
			continue
		}
		payload := catalog.GenreList(root)
		if payload == nil {
			continue
		}
		if genres := catalog.NormalizeGenres(payload); len(genres) > 0 {
			log.Printf("Fetched %d categories from %s", len(genres), q)
			return genres
		}
	}

	if channels != nil {
		if genres := catalog.SynthesizeGenres(channels); len(genres) > 0 {
			log.Printf("No portal genres; built %d fallback categories from channels", len(genres))
			return genres
		}
	}
	log.Warn("No categories fetched; channels fall back to explicit names or Unknown")
	return catalog.GenreMap{}
}

// FetchChannels downloads the full channel list, resolves every channel's category and
// persists the merged list as the catalog document. A body that is not a JSON object or
// list fails with ErrInvalidResponse.
func (c *Client) FetchChannels(ctx context.Context, sess *Session) ([]catalog.Channel, error) {
	log.Printf("Fetching channels")
	resp, err := c.get(ctx, "get_all_channels", c.loadURL(channelsQuery), sess.Headers, c.Retry)
	if err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	root, err := catalog.DecodeJSON(resp.Body)
	if err == nil {
		switch root.(type) {
		case map[string]interface{}, []interface{}:
		default:
			err = fmt.Errorf("not an object or list")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, snippet(resp.Body, 300))
	}
	list := catalog.ChannelListJSON(resp.Body, root)
	if list == nil {
		list = []interface{}{}
	}
	log.Printf("Got %d channels", len(list))

	merged := catalog.Merge(list, c.ResolveGenres(ctx, sess, list))
	data, err := catalog.Encode(merged)
	if err != nil {
		return nil, fmt.Errorf("fetch channels: encode: %w", err)
	}
	if err := c.Store.Save(ctx, store.KeyChannels, data); err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	log.Printf("Saved %d channels with categories", len(merged))
	return merged, nil
}

// queryAction extracts the action parameter for metrics labels.
func queryAction(q string) string {
	if v, err := url.ParseQuery(q); err == nil && v.Get("action") != "" {
		return v.Get("action")
	}
	return "unknown"
}

// snippet returns at most n bytes of b for error messages.
func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
