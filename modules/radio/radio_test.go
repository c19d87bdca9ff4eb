package radio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grafana/dskit/services"

	"github.com/zachfi/personalradio/pkg/rptimer"
	"github.com/zachfi/personalradio/pkg/schedule"
	"github.com/zachfi/personalradio/pkg/secret"
	"github.com/zachfi/personalradio/pkg/secret/secrettest"
	"github.com/zachfi/personalradio/pkg/station"
)

const testAgent = "agent-secret"

// providers fakes the manifest host and the three Korean providers.
type providers struct {
	mu           sync.Mutex
	url          string
	manifestDown bool
	programs     []string // program codes served by successive schedule requests

	// When set, timestamp requests announce themselves on tsHeld and wait
	// for tsRelease.
	tsHeld    chan struct{}
	tsRelease chan struct{}
}

func (p *providers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/manifest.json":
		if p.manifestDown {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Write(secrettest.Manifest(secrettest.Plain{
			KBS:      p.url + "/kbs/",
			KBSAgent: testAgent,
			KBSTs:    p.url + "/ts",
			KBSParam: "/param?ch=",
			KBSMeta:  "/meta?ch=",
			MBC:      p.url + "/mbc",
			SBS:      p.url + "/sbs/",
		}))
	case r.URL.Path == "/ts":
		p.mu.Lock()
		held, release := p.tsHeld, p.tsRelease
		p.mu.Unlock()
		if held != nil {
			held <- struct{}{}
			<-release
		}
		fmt.Fprint(w, "1700000000")
	case strings.HasPrefix(r.URL.Path, "/kbs/"):
		raw, _ := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(r.URL.Path, "/kbs/"))
		payload := string(raw)
		switch {
		case strings.HasPrefix(payload, "/param?ch="):
			fmt.Fprint(w, `{"real_service_url":"https://kbs.example/live.m3u8"}`)
		case strings.HasPrefix(payload, "/meta?ch="):
			code := p.nextProgram()
			fmt.Fprintf(w, `{"data":[{"program_code":%q,"program_title":"Show %s","end_time":"0900"}]}`, code, code)
		default:
			http.NotFound(w, r)
		}
	case strings.HasPrefix(r.URL.Path, "/sbs/"):
		fmt.Fprint(w, secrettest.EncryptSBS("https://sbs.example"+strings.TrimPrefix(r.URL.Path, "/sbs")+".m3u8"))
	case r.URL.Path == "/mbc":
		fmt.Fprint(w, "https://mbc.example/"+r.URL.Query().Get("channel")+".m3u8")
	default:
		http.NotFound(w, r)
	}
}

func (p *providers) nextProgram() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	code := p.programs[0]
	if len(p.programs) > 1 {
		p.programs = p.programs[1:]
	}
	return code
}

type recordingTransport struct {
	mu       sync.Mutex
	commands []string
}

func (t *recordingTransport) record(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commands = append(t.commands, cmd)
	return nil
}

func (t *recordingTransport) Stop(context.Context) error            { return t.record("stop") }
func (t *recordingTransport) Clear(context.Context) error           { return t.record("clear") }
func (t *recordingTransport) Add(_ context.Context, u string) error { return t.record("add " + u) }
func (t *recordingTransport) Play(context.Context) error            { return t.record("play") }
func (t *recordingTransport) Pause(context.Context) error           { return t.record("pause") }
func (t *recordingTransport) Resume(context.Context) error          { return t.record("resume") }

func (t *recordingTransport) take() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.commands
	t.commands = nil
	return out
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) rptimer.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, ft)
	return ft
}

func (c *fakeClock) pending() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.timers) - 1; i >= 0; i-- {
		if ft := c.timers[i]; !ft.stopped && !ft.fired {
			return ft
		}
	}
	return nil
}

func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	ft := c.pending()
	if ft == nil {
		t.Fatal("no pending timer")
	}
	ft.fired = true
	ft.f()
}

type fixture struct {
	radio     *Radio
	providers *providers
	transport *recordingTransport
	clock     *fakeClock
}

func newFixture(t *testing.T, manifestDown bool) *fixture {
	t.Helper()

	p := &providers{manifestDown: manifestDown, programs: []string{"P1"}}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	p.url = srv.URL

	cfg := Config{}
	cfg.ManifestURL = srv.URL + "/manifest.json"
	cfg.Language = "en"
	cfg.Timezone = "Asia/Seoul"
	cfg.MaxMetaRetries = schedule.DefaultMaxRetries
	cfg.Linn = LinnConfig{JazzName: "Linn Jazz", JazzURL: "http://linn.example/jazz"}

	tr := &recordingTransport{}
	clock := &fakeClock{}
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.FixedZone("KST", 9*60*60))

	r, err := New(cfg, *slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithHTTPClient(srv.Client()),
		WithTransport(tr),
		WithTrackerOptions(
			schedule.WithAfterFunc(clock.AfterFunc),
			schedule.WithNow(func() time.Time { return now }),
		),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := services.StartAndAwaitRunning(context.Background(), r); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = services.StopAndAwaitTerminated(context.Background(), r)
	})

	return &fixture{radio: r, providers: p, transport: tr, clock: clock}
}

func TestExplode_ManifestUnavailable(t *testing.T) {
	f := newFixture(t, true)

	track, err := f.radio.Explode(context.Background(), "kbs/0")

	var sfe *secret.SecretFetchError
	if !errors.As(err, &sfe) {
		t.Fatalf("expected SecretFetchError, got %v", err)
	}
	if track == nil || track.PlayURI != "" {
		t.Fatalf("expected a track without play uri, got %+v", track)
	}
	if track.Provider != station.KBS || track.Title != "KBS Classic FM" {
		t.Errorf("unexpected track %+v", track)
	}

	notices := f.radio.Notices()
	if len(notices) != 1 {
		t.Fatalf("expected exactly one notice, got %+v", notices)
	}
	if notices[0].Kind != NoticeError || notices[0].Key != "ERROR_SECRET_KEY_SERVER" {
		t.Errorf("unexpected notice %+v", notices[0])
	}

	// Static providers do not need the manifest.
	track, err = f.radio.Explode(context.Background(), "linn/0")
	if err != nil || track.PlayURI != "http://linn.example/jazz" {
		t.Errorf("linn: got %+v, %v", track, err)
	}
}

func TestExplode_SBS(t *testing.T) {
	f := newFixture(t, false)

	track, err := f.radio.Explode(context.Background(), "sbs/1")
	if err != nil {
		t.Fatalf("explode: %v", err)
	}
	if track.PlayURI != "https://sbs.example/powerfm/powerfm.m3u8" {
		t.Errorf("unexpected play uri %q", track.PlayURI)
	}
	if len(f.radio.Notices()) != 0 {
		t.Errorf("unexpected notices %+v", f.radio.Notices())
	}
}

func TestExplode_UnknownChannel(t *testing.T) {
	f := newFixture(t, false)

	for _, uri := range []string{"kbs/6", "cbs/0", "kbs"} {
		track, err := f.radio.Explode(context.Background(), uri)
		if !errors.Is(err, station.ErrUnknownChannel) || track != nil {
			t.Errorf("%s: got %+v, %v", uri, track, err)
		}
	}
}

func TestPlay_KBSTracksProgram(t *testing.T) {
	f := newFixture(t, false)
	f.providers.programs = []string{"P1", "P1", "P2"}

	track, err := f.radio.Play(context.Background(), "kbs/0")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if track.Name != "KBS Classic FM(Show P1)" {
		t.Errorf("unexpected name %q", track.Name)
	}

	want := []string{"stop", "clear", "add https://kbs.example/live.m3u8", "play"}
	if got := f.transport.take(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if n := f.radio.Notices(); len(n) != 1 || n[0].Key != "WAIT_FOR_RADIO_CHANNEL" {
		t.Errorf("unexpected notices %+v", n)
	}

	// Forced first poll: same program, published anyway.
	f.clock.fire(t)
	st := f.radio.Playback()
	if st.Status != StatusPlay || st.Name != "KBS Classic FM(Show P1)" || st.Duration != 3605 || !st.DisableUIControls {
		t.Errorf("unexpected state %+v", st)
	}

	// The next poll sees the program change.
	f.clock.fire(t)
	if st := f.radio.Playback(); st.Name != "KBS Classic FM(Show P2)" {
		t.Errorf("expected the new program, got %+v", st)
	}

	pending := f.clock.pending()
	if pending == nil {
		t.Fatal("expected a poll at program end")
	}
	if err := f.radio.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !pending.stopped {
		t.Error("pause must cancel the pending poll")
	}
	if got := f.transport.take(); len(got) != 1 || got[0] != "pause" {
		t.Errorf("unexpected commands %v", got)
	}
	if st := f.radio.Playback(); st.Status != StatusPause {
		t.Errorf("unexpected status %s", st.Status)
	}

	if err := f.radio.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if p := f.clock.pending(); p == nil || p.d != 0 {
		t.Errorf("expected an immediate forced poll, got %+v", p)
	}
}

func TestPlay_SBSHasNoTracking(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.radio.Play(context.Background(), "sbs/0"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if p := f.clock.pending(); p != nil {
		t.Errorf("expected no metadata poll, got %+v", p)
	}

	if err := f.radio.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := f.radio.Playback(); st.Status != StatusStop {
		t.Errorf("unexpected status %s", st.Status)
	}
	if err := f.radio.Resume(context.Background()); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected resume after stop to fail with ErrNotPlaying, got %v", err)
	}
	notices := f.radio.Notices()
	if last := notices[len(notices)-1]; last.Key != "STOP_RADIO_CHANNEL" {
		t.Errorf("unexpected notice %+v", last)
	}
}

func TestPlay_NewerRequestWins(t *testing.T) {
	f := newFixture(t, false)

	f.providers.mu.Lock()
	f.providers.tsHeld = make(chan struct{})
	f.providers.tsRelease = make(chan struct{})
	held, release := f.providers.tsHeld, f.providers.tsRelease
	f.providers.mu.Unlock()

	type result struct {
		track *station.Track
		err   error
	}
	slow := make(chan result, 1)
	go func() {
		track, err := f.radio.Play(context.Background(), "kbs/0")
		slow <- result{track, err}
	}()
	<-held

	if _, err := f.radio.Play(context.Background(), "sbs/1"); err != nil {
		t.Fatalf("play sbs: %v", err)
	}
	close(release)

	res := <-slow
	if !errors.Is(res.err, ErrSuperseded) {
		t.Fatalf("expected the older play to be superseded, got %v", res.err)
	}

	want := []string{"stop", "clear", "add https://sbs.example/powerfm/powerfm.m3u8", "play"}
	if got := f.transport.take(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if st := f.radio.Playback(); st.URI != "sbs/1" {
		t.Errorf("expected sbs/1 to stay loaded, got %+v", st)
	}
	if p := f.clock.pending(); p != nil {
		t.Errorf("expected no metadata poll for the dropped kbs stream, got %+v", p)
	}
}

func TestStop_DropsPendingPlay(t *testing.T) {
	f := newFixture(t, false)

	f.providers.mu.Lock()
	f.providers.tsHeld = make(chan struct{})
	f.providers.tsRelease = make(chan struct{})
	held, release := f.providers.tsHeld, f.providers.tsRelease
	f.providers.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.radio.Play(context.Background(), "kbs/0")
		done <- err
	}()
	<-held

	if err := f.radio.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if got := f.transport.take(); len(got) != 1 || got[0] != "stop" {
		t.Errorf("unexpected commands %v", got)
	}
}

func TestPlay_FailureDoesNotTouchTransport(t *testing.T) {
	f := newFixture(t, true)

	if _, err := f.radio.Play(context.Background(), "mbc/0"); err == nil {
		t.Fatal("expected an error")
	}
	if got := f.transport.take(); len(got) != 0 {
		t.Errorf("unexpected commands %v", got)
	}
	if err := f.radio.Pause(context.Background()); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
}

func TestKBSSchedule(t *testing.T) {
	f := newFixture(t, false)

	title, programs, err := f.radio.KBSSchedule(context.Background(), 2)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if title != "KBS 1Radio Program Schedule" || len(programs) != 1 {
		t.Errorf("unexpected schedule %q %+v", title, programs)
	}
}
