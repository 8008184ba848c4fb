package portal

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/store"
)

func TestResolve_directAndFFmpegSkipPortal(t *testing.T) {
	tests := []struct {
		cmd    string
		want   string
		branch string
	}{
		{"http://x.test/stream.ts", "http://x.test/stream.ts", "direct"},
		{"  HTTPS://x.test/a.m3u8?token=1 extra", "HTTPS://x.test/a.m3u8?token=1", "direct"},
		{"ffmpeg http://x.test/s.ts", "http://x.test/s.ts", "direct"},
		{"auto http://x.test/'q", "http://x.test/", "direct"},
	}
	for _, tt := range tests {
		fp := newFakePortal(t)
		c, _, _ := newTestClient(t, fp)
		got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": tt.cmd})
		if err != nil {
			t.Fatalf("%q: %v", tt.cmd, err)
		}
		if got.URL != tt.want || got.Branch != tt.branch {
			t.Errorf("%q: got %+v, want %s (%s)", tt.cmd, got, tt.want, tt.branch)
		}
		if n := fp.count("create_link"); n != 0 {
			t.Errorf("%q: %d create_link calls, want 0", tt.cmd, n)
		}
	}
}

func TestResolve_ffrtCreateLink(t *testing.T) {
	fp := newFakePortal(t)
	c, mem, _ := newTestClient(t, fp)
	got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": "ffrt http://portal/internal"})
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "http://stream.test/1.ts" || got.Branch != "ffrt" {
		t.Errorf("got %+v", got)
	}
	if n := fp.count("create_link"); n != 1 {
		t.Errorf("create_link calls = %d, want 1", n)
	}
	if fp.count("handshake") != 0 {
		t.Error("unexpected re-handshake")
	}
	if q := fp.lastQuery("create_link"); q != "type=itv&action=create_link&cmd=ffrt%20http%3A%2F%2Fportal%2Finternal&JsHttpRequest=1-xml" {
		t.Errorf("query = %s", q)
	}
	if _, err := mem.Load(context.Background(), store.KeyCreatedLink); err != nil {
		t.Errorf("created link not persisted: %v", err)
	}
}

func TestResolve_ffrtNonJSONRetriesOnce(t *testing.T) {
	fp := newFakePortal(t)
	calls := 0
	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte("Session expired"))
			return
		}
		writeJSON(w, `{"js":{"url":"http://stream.test/fresh.ts"}}`)
	})
	c, _, _ := newTestClient(t, fp)
	got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": "ffrt http://portal/internal"})
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "http://stream.test/fresh.ts" {
		t.Errorf("got %+v", got)
	}
	if fp.count("create_link") != 2 || fp.count("handshake") != 1 {
		t.Errorf("calls = %v", fp.snapshot())
	}
	if h := fp.lastHeader("create_link"); h.Get("Authorization") != "Bearer TOKEN-abcdef" {
		t.Errorf("retry did not use the new session: %q", h.Get("Authorization"))
	}
}

func TestResolve_ffrtNonJSONNeverMoreThanOneRetry(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>bad</html>")) })
	c, _, _ := newTestClient(t, fp)
	got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": "ffrt http://portal/internal"})
	if err != nil {
		t.Fatal(err)
	}
	if fp.count("create_link") != 2 || fp.count("handshake") != 1 {
		t.Errorf("calls = %v", fp.snapshot())
	}
	want := map[string]interface{}{"status": "non-json", "text": "<html>bad</html>"}
	if got.URL != "" || !reflect.DeepEqual(got.Raw, want) {
		t.Errorf("got %+v", got)
	}
}

func TestResolve_ffrtFailedRetryKeepsNonJSON(t *testing.T) {
	fp := newFakePortal(t)
	calls := 0
	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte("Session expired"))
			return
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	})
	c, _, _ := newTestClient(t, fp)
	got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": "ffrt http://portal/internal"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fp.count("handshake") != 1 || fp.count("create_link") < 2 {
		t.Errorf("calls = %v", fp.snapshot())
	}
	want := map[string]interface{}{"status": "non-json", "text": "Session expired"}
	if got.URL != "" || got.Branch != "ffrt" || !reflect.DeepEqual(got.Raw, want) {
		t.Errorf("got %+v", got)
	}
}

func TestResolve_ffrtRawWhenNoURL(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":{"cmd":"rtsp://nope","error":"limit"}}`)
	})
	c, _, _ := newTestClient(t, fp)
	got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": "ffrt 42"})
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := got.Raw.(map[string]interface{})
	if got.URL != "" || !ok || raw["error"] != "limit" {
		t.Errorf("got %+v", got)
	}
}

func TestResolve_nonHTTPDirectNotRedirected(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":{"direct":"file:///etc/passwd"}}`)
	})
	c, _, _ := newTestClient(t, fp)
	got, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"cmd": "ffrt 7"})
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "" {
		t.Errorf("URL = %q, want none", got.URL)
	}
}

func TestResolve_defaultBranch(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":{"direct":" http://cdn.test/x.ts "}}`)
	})
	c, _, _ := newTestClient(t, fp)
	ctx := context.Background()
	got, err := c.Resolve(ctx, testSession(fp), catalog.Channel{"cmds": []interface{}{map[string]interface{}{"cmd": "opaque_123"}}})
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "http://cdn.test/x.ts" || got.Branch != "create_link" {
		t.Errorf("got %+v", got)
	}

	fp.handle("create_link", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `{"js":{"id":5}}`) })
	got, err = c.Resolve(ctx, testSession(fp), catalog.Channel{"cmd": "opaque_123"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Raw, map[string]interface{}{"cmd": "opaque_123"}) {
		t.Errorf("raw = %v", got.Raw)
	}
}

func TestResolve_noCommand(t *testing.T) {
	fp := newFakePortal(t)
	c, _, _ := newTestClient(t, fp)
	if _, err := c.Resolve(context.Background(), testSession(fp), catalog.Channel{"name": "x"}); !errors.Is(err, ErrNoCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateLink_shortCircuit(t *testing.T) {
	fp := newFakePortal(t)
	c, _, _ := newTestClient(t, fp)
	res, err := c.CreateLink(context.Background(), testSession(fp), "ffmpeg http://x/y.ts")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"direct": "http://x/y.ts", "source_cmd": "ffmpeg http://x/y.ts"}
	if !reflect.DeepEqual(res.Payload(), want) || fp.count("create_link") != 0 {
		t.Errorf("payload = %v, calls = %d", res.Payload(), fp.count("create_link"))
	}
}

func TestEncodeUpperAndCookies(t *testing.T) {
	if got := EncodeUpper("a b/ü~"); got != "a%20b%2F%C3%BC~" {
		t.Errorf("EncodeUpper = %q", got)
	}
	set := []*http.Cookie{
		{Name: "stb_lang", Value: "ru"},
		{Name: "PHPSESSID", Value: "x1"},
		{Name: "bad name", Value: "v"},
		{Name: "PHPSESSID", Value: "x2"},
	}
	got := mergeCookies("mac=AA; stb_lang=en; timezone=GMT", set)
	if want := "mac=AA; stb_lang=ru; timezone=GMT; PHPSESSID=x2"; got != want {
		t.Errorf("mergeCookies = %q, want %q", got, want)
	}
}
