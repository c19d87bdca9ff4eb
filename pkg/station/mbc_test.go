package station

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/zachfi/personalradio/pkg/fetch"
)

func TestDecodeMBC(t *testing.T) {
	const live = "https://mbc.example/sfm/playlist.m3u8"

	cases := []struct {
		name   string
		body   string
		format MBCFormat
		want   string
		bad    bool
	}{
		{name: "plain", body: live + "\n", format: MBCPlainURL, want: live},
		{name: "json", body: `{"AACLiveURL":"` + live + `"}`, format: MBCJSONField, want: live},
		{name: "jsonp", body: `({"AACLiveURL":"` + live + `"});`, format: MBCJSONP, want: live},
		{name: "named jsonp", body: `cb({"AACLiveURL":"` + live + `"})`, format: MBCJSONP, want: live},
		{name: "json missing field", body: `{"url":"x"}`, format: MBCJSONField, bad: true},
		{name: "broken jsonp", body: `({"AACLiveURL":});`, format: MBCJSONP, bad: true},
		{name: "html", body: `<html>error</html>`, format: MBCUnknown, bad: true},
		{name: "url with junk", body: live + " extra", format: MBCPlainURL, bad: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, format, err := DecodeMBC(tc.body)
			if format != tc.format {
				t.Errorf("expected format %s, got %s", tc.format, format)
			}
			if tc.bad {
				var ire *IncorrectResponseError
				if !errors.As(err, &ire) {
					t.Errorf("expected IncorrectResponseError, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("got %q, %v", got, err)
			}
		})
	}
}

func TestMBCResolve(t *testing.T) {
	var query url.Values
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		fmt.Fprint(w, "https://mbc.example/fm4u/playlist.m3u8")
	}))

	r := NewMBC(client, testCatalog(t), srv.URL+"/aac", testLogger())
	r.nocash = func() string { return "fixed" }

	track, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for k, v := range map[string]string{"channel": "mfm", "agent": "webapp", "protocol": "M3U8", "nocash": "fixed"} {
		if query.Get(k) != v {
			t.Errorf("query %s: expected %q, got %q", k, v, query.Get(k))
		}
	}
	if track.PlayURI != "https://mbc.example/fm4u/playlist.m3u8" || track.Title != "MBC FM4U" {
		t.Errorf("unexpected track %+v", track)
	}
}

func TestMBCResolve_CacheBusterChanges(t *testing.T) {
	var seen []string
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("nocash"))
		fmt.Fprint(w, "https://mbc.example/live.m3u8")
	}))

	r := NewMBC(client, testCatalog(t), srv.URL, testLogger())
	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), 0); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if len(seen) != 2 || seen[0] == "" || seen[0] == seen[1] {
		t.Errorf("expected distinct cache busters, got %v", seen)
	}
}

func TestMBCResolve_ServerError(t *testing.T) {
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	r := NewMBC(client, testCatalog(t), srv.URL, testLogger())
	track, err := r.Resolve(context.Background(), 2)

	var sse *fetch.StreamServerError
	if !errors.As(err, &sse) || sse.StatusCode != http.StatusForbidden || sse.Provider != MBC {
		t.Fatalf("expected a 403 StreamServerError, got %v", err)
	}
	if track.PlayURI != "" || track.Title != "MBC Channel M" {
		t.Errorf("unexpected track %+v", track)
	}
}
