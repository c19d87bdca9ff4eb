package station

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zachfi/personalradio/pkg/fetch"
	"github.com/zachfi/personalradio/pkg/schedule"
	"github.com/zachfi/personalradio/pkg/secret"
	"github.com/zachfi/personalradio/pkg/signing"
)

const (
	kbsAgent = "agent-secret"
	kbsTs    = "1700000000"
)

// fakeKBS answers signed requests under /stream/<fragment>.
type fakeKBS struct {
	mu          sync.Mutex
	channels    []string
	tsHits      int
	streamBody  string
	scheduleFor func(channel string) string
}

func (f *fakeKBS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ts" {
		f.mu.Lock()
		f.tsHits++
		f.mu.Unlock()
		fmt.Fprint(w, kbsTs)
		return
	}

	fragment := strings.TrimPrefix(r.URL.Path, "/stream/")
	raw, err := base64.RawStdEncoding.DecodeString(fragment)
	if err != nil {
		http.Error(w, "bad fragment", http.StatusBadRequest)
		return
	}

	// endpoint&reqts=<ts>&authcode=<sig>
	payload := string(raw)
	i := strings.Index(payload, "&reqts=")
	endpoint := payload[:i]
	if want := "&reqts=" + kbsTs + "&authcode=" + signing.Sign(kbsAgent, kbsTs, endpoint); payload[i:] != want {
		http.Error(w, "bad signature", http.StatusForbidden)
		return
	}

	switch {
	case strings.HasPrefix(endpoint, "/param?channel="):
		f.mu.Lock()
		f.channels = append(f.channels, strings.TrimPrefix(endpoint, "/param?channel="))
		f.mu.Unlock()
		fmt.Fprint(w, f.streamBody)
	case strings.HasPrefix(endpoint, "/meta?channel="):
		fmt.Fprint(w, f.scheduleFor(strings.TrimPrefix(endpoint, "/meta?channel=")))
	default:
		http.NotFound(w, r)
	}
}

func scheduleJSON(entries ...string) string {
	return `{"data":[` + strings.Join(entries, ",") + `]}`
}

func newKBSFixture(t *testing.T, fake *fakeKBS) *KBSResolver {
	t.Helper()
	client, srv := testClient(t, fake)
	endpoints := secret.KBS{
		Stream:    srv.URL + "/stream/",
		Agent:     kbsAgent,
		Timestamp: srv.URL + "/ts",
		Param:     "/param?channel=",
		Meta:      "/meta?channel=",
	}
	k := NewKBS(client, testCatalog(t), endpoints, schedule.Config{}, testLogger())
	k.now = func() time.Time { return time.Date(2024, 3, 10, 8, 30, 0, 0, k.sched.Location) }
	return k
}

func TestKBSResolve(t *testing.T) {
	fake := &fakeKBS{
		streamBody: `{"real_service_url":"https://kbs.example/live/1fm.m3u8","other":1}`,
		scheduleFor: func(string) string {
			return scheduleJSON(
				`{"program_code":"P100","program_title":"Morning Classic","start_time":"0700","end_time":"0900","relation_image":"https://kbs.example/p100.jpg"}`,
				`{"program_code":"P101","program_title":"Noon","start_time":"0900","end_time":"1200"}`,
			)
		},
	}
	k := newKBSFixture(t, fake)

	track, err := k.Resolve(context.Background(), 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if track.PlayURI != "https://kbs.example/live/1fm.m3u8" {
		t.Errorf("unexpected play uri %q", track.PlayURI)
	}
	if track.Name != "KBS Classic FM(Morning Classic)" || track.ProgramTitle != "Morning Classic" {
		t.Errorf("unexpected name %q", track.Name)
	}
	if track.AlbumArt != "https://kbs.example/p100.jpg" {
		t.Errorf("unexpected albumart %q", track.AlbumArt)
	}
	if track.Duration != 30*60+5 {
		t.Errorf("unexpected duration %d", track.Duration)
	}
	if track.Provider != KBS || !track.DisableUIControls {
		t.Errorf("unexpected track %+v", track)
	}

	seed := track.Program
	if seed == nil || seed.ProgramCode != "P100" || seed.Channel != 0 || seed.MetaQuery == "" {
		t.Errorf("unexpected seed %+v", seed)
	}

	// One timestamp signs both fragments.
	if fake.tsHits != 1 {
		t.Errorf("expected one timestamp fetch, got %d", fake.tsHits)
	}
}

func TestKBSResolve_WireChannelIsOneBased(t *testing.T) {
	fake := &fakeKBS{
		streamBody:  `{"real_service_url":"https://kbs.example/live.m3u8"}`,
		scheduleFor: func(string) string { return scheduleJSON() },
	}
	k := newKBSFixture(t, fake)

	for _, index := range []int{0, 3, 5} {
		if _, err := k.Resolve(context.Background(), index); err != nil {
			t.Fatalf("resolve %d: %v", index, err)
		}
	}

	want := []string{"1", "4", "6"}
	if strings.Join(fake.channels, ",") != strings.Join(want, ",") {
		t.Errorf("expected wire channels %v, got %v", want, fake.channels)
	}
}

func TestKBSResolve_IncorrectResponse(t *testing.T) {
	for _, body := range []string{`<html>maintenance</html>`, `{"url":"x"}`} {
		fake := &fakeKBS{
			streamBody:  body,
			scheduleFor: func(string) string { return scheduleJSON() },
		}
		k := newKBSFixture(t, fake)

		track, err := k.Resolve(context.Background(), 1)
		var ire *IncorrectResponseError
		if !errors.As(err, &ire) {
			t.Fatalf("%q: expected IncorrectResponseError, got %v", body, err)
		}
		if track == nil || track.PlayURI != "" || track.Title != "KBS Cool FM" {
			t.Errorf("%q: expected a titled track without play uri, got %+v", body, track)
		}
	}
}

func TestKBSResolve_TimestampFailure(t *testing.T) {
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	k := NewKBS(client, testCatalog(t), secret.KBS{
		Stream:    srv.URL + "/stream/",
		Agent:     kbsAgent,
		Timestamp: srv.URL + "/ts",
		Param:     "/param?channel=",
		Meta:      "/meta?channel=",
	}, schedule.Config{}, testLogger())

	track, err := k.Resolve(context.Background(), 0)
	var sse *fetch.StreamServerError
	if !errors.As(err, &sse) {
		t.Fatalf("expected StreamServerError, got %v", err)
	}
	if track.PlayURI != "" {
		t.Errorf("expected no play uri, got %q", track.PlayURI)
	}
}

func TestKBSResolve_MissingScheduleStillPlays(t *testing.T) {
	fake := &fakeKBS{
		streamBody:  `{"real_service_url":"https://kbs.example/live.m3u8"}`,
		scheduleFor: func(string) string { return `not json` },
	}
	k := newKBSFixture(t, fake)

	track, err := k.Resolve(context.Background(), 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if track.PlayURI == "" || track.Duration != 0 || track.Name != "KBS 1Radio" {
		t.Errorf("unexpected track %+v", track)
	}
	if track.Program == nil || track.Program.ProgramCode != "" {
		t.Errorf("expected an empty seed, got %+v", track.Program)
	}
}

func TestKBSActiveProgram(t *testing.T) {
	fake := &fakeKBS{
		scheduleFor: func(channel string) string {
			return scheduleJSON(`{"program_code":"C` + channel + `","program_title":"T","end_time":"2600"}`)
		},
	}
	k := newKBSFixture(t, fake)

	prog, query, err := k.ActiveProgram(context.Background(), schedule.State{Provider: KBS, Channel: 4})
	if err != nil {
		t.Fatalf("active program: %v", err)
	}
	if prog.Code != "C5" || prog.End != "2600" {
		t.Errorf("unexpected program %+v", prog)
	}
	if query == "" {
		t.Error("expected the signed meta fragment")
	}
}

func TestKBSSchedule(t *testing.T) {
	fake := &fakeKBS{
		scheduleFor: func(string) string {
			return scheduleJSON(
				`{"program_code":"A","program_title":"Dawn","start_time":"0500","end_time":"0700"}`,
				`{"program_code":"B","program_title":"Late","start_time":"2400","end_time":"2600"}`,
			)
		},
	}
	k := newKBSFixture(t, fake)

	programs, err := k.Schedule(context.Background(), 1)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(programs))
	}
	if programs[1].Range() != "24:00~26:00" || programs[1].Title != "Late" {
		t.Errorf("unexpected program %+v", programs[1])
	}

	if _, err := k.Schedule(context.Background(), 10); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}
