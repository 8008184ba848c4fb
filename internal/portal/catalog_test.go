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

func testSession(fp *fakePortal) *Session {
	return &Session{Token: "t", MAC: testMAC, Headers: BuildHeaders(fp.base(), "mac="+testMAC, "t")}
}

func TestResolveGenres_firstNonEmptyEndpointWins(t *testing.T) {
	fp := newFakePortal(t)
	var seen []string
	fp.handle("get_genres", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("type")+"/"+r.URL.Query().Get("JsHttpRequest"))
		w.Write([]byte("<html>not here</html>"))
	})
	fp.handle("get_all_genres", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":[{"id":"1","title":"News"},{"id":"2","title":"Sports"}]}`)
	})
	c, _, _ := newTestClient(t, fp)
	ctx := context.Background()

	got := c.ResolveGenres(ctx, testSession(fp), nil)
	want := catalog.GenreMap{"1": "News", "2": "Sports"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("genres = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(seen, []string{"itv/1-xml", "itv/1-utf8"}) {
		t.Errorf("get_genres probes = %v", seen)
	}
	if fp.count("get_categories") != 0 || fp.count("get_all_categories") != 0 {
		t.Error("probing continued past the first non-empty endpoint")
	}
	if fp.count("get_profile") != 1 {
		t.Errorf("profile sync before genres: %d calls", fp.count("get_profile"))
	}

	if again := c.ResolveGenres(ctx, testSession(fp), nil); !reflect.DeepEqual(again, got) {
		t.Errorf("not idempotent: %v vs %v", again, got)
	}
}

func TestResolveGenres_fallbacks(t *testing.T) {
	fp := newFakePortal(t)
	c, _, _ := newTestClient(t, fp)
	ctx := context.Background()

	channels := []interface{}{
		map[string]interface{}{"name": "a", "genres_str": "Cricket"},
		map[string]interface{}{"name": "b", "genres_str": "Football"},
	}
	got := c.ResolveGenres(ctx, testSession(fp), channels)
	if !reflect.DeepEqual(got, catalog.GenreMap{"1": "Cricket", "2": "Football"}) {
		t.Errorf("synthesized = %v", got)
	}
	for _, a := range []string{"get_genres", "get_all_genres", "get_categories", "get_all_categories"} {
		if fp.count(a) == 0 {
			t.Errorf("%s not probed", a)
		}
	}
	if fp.count("get_genres") != 3 {
		t.Errorf("get_genres variants probed %d times, want 3", fp.count("get_genres"))
	}

	if got := c.ResolveGenres(ctx, testSession(fp), nil); len(got) != 0 {
		t.Errorf("no channels: %v", got)
	}
}

func TestFetchChannels_mergeAndPersist(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("get_all_channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":{"total_items":3,"data":[
			{"name":"Sky News","cmd":"ffrt http://localhost/ch/1","category":"News","tv_genre_id":"7"},
			{"name":"Sky Sports","cmd":"ffrt http://localhost/ch/2","tv_genre_id":"7"},
			{"name":"Mystery","cmd":"ffrt http://localhost/ch/3","tv_genre_id":"99"}
		]}}`)
	})
	fp.handle("get_genres", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":[{"id":"7","title":"Sports"}]}`)
	})
	c, mem, _ := newTestClient(t, fp)
	ctx := context.Background()

	got, err := c.FetchChannels(ctx, testSession(fp))
	if err != nil {
		t.Fatal(err)
	}
	cats := []string{got[0].Group(), got[1].Group(), got[2].Group()}
	if !reflect.DeepEqual(cats, []string{"News", "Sports", catalog.Unknown}) {
		t.Errorf("categories = %v", cats)
	}

	cat := catalog.New()
	if _, err := cat.Load(ctx, mem); err != nil {
		t.Fatal(err)
	}
	if cat.Len() != 3 {
		t.Fatalf("persisted %d channels", cat.Len())
	}
	if ch, _ := cat.At(1); ch.Name(1) != "Sky Sports" || ch.Group() != "Sports" {
		t.Errorf("persisted[1] = %v", ch)
	}
}

func TestFetchChannels_invalidResponse(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("get_all_channels", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>Access denied</html>"))
	})
	c, mem, _ := newTestClient(t, fp)
	_, err := c.FetchChannels(context.Background(), testSession(fp))
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
	if _, err := mem.Load(context.Background(), store.KeyChannels); err != store.ErrNotFound {
		t.Error("catalog persisted on invalid response")
	}

	fp.handle("get_all_channels", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `"just a string"`) })
	if _, err := c.FetchChannels(context.Background(), testSession(fp)); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("scalar body: err = %v", err)
	}
}

func TestFetchChannels_bareList(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("get_all_channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"name":"A","cmd":"http://a/1","genres_str":"Kids"},"junk"]`)
	})
	c, _, _ := newTestClient(t, fp)
	got, err := c.FetchChannels(context.Background(), testSession(fp))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Group() != "Kids" || got[1]["raw"] != "junk" {
		t.Errorf("channels = %v", got)
	}
}

func TestFetchChannels_objectKeyedKeepsPortalOrder(t *testing.T) {
	fp := newFakePortal(t)
	fp.handle("get_all_channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"js":{"data":{"1":{"name":"one"},"2":{"name":"two"},"10":{"name":"ten"}}}}`)
	})
	c, mem, _ := newTestClient(t, fp)
	got, err := c.FetchChannels(context.Background(), testSession(fp))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"one", "two", "ten"}
	if len(got) != len(want) {
		t.Fatalf("channels = %v", got)
	}
	for i, name := range want {
		if got[i].Name(i) != name {
			t.Errorf("index %d = %q, want %q", i, got[i].Name(i), name)
		}
	}
	stored := catalog.New()
	if _, err := stored.Load(context.Background(), mem); err != nil {
		t.Fatal(err)
	}
	if ch, ok := stored.At(1); !ok || ch.Name(1) != "two" {
		t.Errorf("stored index 1 = %v", ch)
	}
}
