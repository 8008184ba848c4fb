package portal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/device"
	"github.com/snapetech/stalkertuner/internal/store"
)

// profileMetrics is the metrics blob sent with get_profile. Field order is part of the
// wire format.
type profileMetrics struct {
	MAC    string `json:"mac"`
	SN     string `json:"sn"`
	Model  string `json:"model"`
	Type   string `json:"type"`
	Random string `json:"random"`
}

// profileURL builds the get_profile probe carrying the device identity, a timestamp and
// a fresh random nonce.
func (c *Client) profileURL() string {
	id := device.FromMAC(c.MAC)
	nonce := make([]byte, 8)
	src := c.Rand
	if src == nil {
		src = rand.Reader
	}
	if _, err := io.ReadFull(src, nonce); err != nil {
		log.WithError(err).Warn("Profile nonce source failed; using crypto/rand")
		rand.Read(nonce)
	}
	m, _ := json.Marshal(profileMetrics{
		MAC:    id.MAC,
		SN:     id.SerialHash,
		Model:  device.Model,
		Type:   "STB",
		Random: hex.EncodeToString(nonce),
	})
	return c.loadURL("type=stb&action=get_profile&hd=1" +
		"&sn=" + url.QueryEscape(id.SerialCut) +
		"&stb_type=" + device.Model +
		"&device_id=" + url.QueryEscape(id.DeviceID) +
		"&device_id2=" + url.QueryEscape(id.DeviceID) +
		"&signature=" + url.QueryEscape(id.Signature) +
		"&timestamp=" + strconv.FormatInt(c.now().Unix(), 10) +
		"&metrics=" + EncodeUpper(string(m)) +
		"&JsHttpRequest=1-xml")
}

// FetchProfile calls get_profile and stores the decoded response (or the raw body when it
// is not JSON) as the current profile document.
func (c *Client) FetchProfile(ctx context.Context, sess *Session) error {
	resp, err := c.get(ctx, "get_profile", c.profileURL(), sess.Headers, noRetry)
	if err != nil {
		return err
	}
	var doc interface{} = string(resp.Body)
	if root, err := catalog.DecodeJSON(resp.Body); err == nil {
		switch root.(type) {
		case map[string]interface{}, []interface{}:
			doc = root
		}
	}
	if err := store.SaveJSON(ctx, c.Store, store.KeyProfile, doc); err != nil {
		return err
	}
	log.Debug("Saved profile response")
	return nil
}

// syncProfile is FetchProfile for callers that must not fail on it.
func (c *Client) syncProfile(ctx context.Context, sess *Session) {
	if err := c.FetchProfile(ctx, sess); err != nil {
		log.WithError(err).Warn("Profile sync failed")
	}
}
