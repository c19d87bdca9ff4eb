package radio

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zachfi/personalradio/pkg/schedule"
	"github.com/zachfi/personalradio/pkg/station"
	"github.com/zachfi/personalradio/pkg/traceutil"
)

var tracer = otel.Tracer("github.com/zachfi/personalradio/modules/radio")

var (
	ErrNotReady   = errors.New("radio is not started")
	ErrNotPlaying = errors.New("no radio channel is playing")
	ErrSuperseded = errors.New("superseded by a newer request")
)

// Explode resolves a logical uri such as "kbs/0" into a track. The previous
// stream's metadata tracking ends here. When the stream cannot be resolved
// the track is still returned, without a play uri, together with the error.
func (r *Radio) Explode(ctx context.Context, uri string) (*station.Track, error) {
	track, _, err := r.explode(ctx, uri)
	return track, err
}

// explode also returns the request generation the track belongs to.
func (r *Radio) explode(ctx context.Context, uri string) (*station.Track, uint64, error) {
	if !r.ready() {
		return nil, 0, ErrNotReady
	}

	provider, index, err := station.ParseURI(uri)
	if err != nil {
		return nil, 0, err
	}
	ch, err := r.catalog.Channel(provider, index)
	if err != nil {
		return nil, 0, err
	}

	r.genMu.Lock()
	gen := r.explodeGen.Add(1)
	r.tracker.Supersede()
	r.genMu.Unlock()

	ctx, span := tracer.Start(ctx, "radio.explode", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.Int("channel", index),
	))

	resolver, ok := r.resolvers[provider]
	if !ok {
		err := r.manifestErr
		if err == nil || !isKorean(provider) {
			err = fmt.Errorf("%w: no resolver for %s", station.ErrUnknownChannel, provider)
		}
		_ = traceutil.ErrHandler(span, err, "stream resolution unavailable", r.logger)

		metricResolutions.WithLabelValues(provider, "unavailable").Inc()
		r.notifier.ResolveFailed(provider, err)
		return &station.Track{URI: ch.URI, Name: ch.Title, Title: ch.Title, Provider: provider, AlbumArt: ch.Artwork}, gen, err
	}

	track, err := resolver.Resolve(ctx, index)
	_ = traceutil.ErrHandler(span, err, "stream resolution failed", r.logger)
	if err != nil {
		metricResolutions.WithLabelValues(provider, "error").Inc()
		r.notifier.ResolveFailed(provider, err)
		return track, gen, err
	}

	metricResolutions.WithLabelValues(provider, "ok").Inc()
	return track, gen, nil
}

// Play resolves uri, hands the stream to the transport and starts metadata
// tracking for providers that have it. A resolution overtaken by a newer
// Explode or Play is dropped with ErrSuperseded and never reaches the
// transport.
func (r *Radio) Play(ctx context.Context, uri string) (*station.Track, error) {
	track, gen, err := r.explode(ctx, uri)
	if err != nil {
		return track, err
	}

	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()

	if r.superseded(gen, uri) {
		return track, ErrSuperseded
	}

	for _, cmd := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"stop", r.transport.Stop},
		{"clear", r.transport.Clear},
		{"add", func(ctx context.Context) error { return r.transport.Add(ctx, track.PlayURI) }},
	} {
		if err := r.command(ctx, cmd.name, cmd.fn); err != nil {
			return track, err
		}
	}

	r.notifier.Info("WAIT_FOR_RADIO_CHANNEL")

	if err := r.command(ctx, "play", r.transport.Play); err != nil {
		return track, err
	}

	src, _ := r.resolvers[track.Provider].(schedule.Source)
	seed := schedule.State{Provider: track.Provider, Channel: channelOf(track)}
	if track.Program != nil && src != nil {
		seed = *track.Program
	} else {
		src = nil
	}

	// Holding genMu keeps a concurrent explode from superseding the tracker
	// between the check and Start.
	r.genMu.Lock()
	defer r.genMu.Unlock()
	if r.superseded(gen, uri) {
		return track, ErrSuperseded
	}

	r.current = track
	r.state.Load(track)
	r.tracker.Start(seed, src, track.Title)

	return track, nil
}

func (r *Radio) superseded(gen uint64, uri string) bool {
	if r.explodeGen.Load() == gen {
		return false
	}
	metricResolutions.WithLabelValues(channelProvider(uri), "superseded").Inc()
	r.logger.Info("dropping superseded resolution", "uri", uri)
	return true
}

// Stop cancels the pending metadata poll, then stops the transport. A play
// still resolving is dropped, and Resume has nothing to resume afterwards.
func (r *Radio) Stop(ctx context.Context) error {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()

	r.genMu.Lock()
	r.explodeGen.Add(1)
	r.tracker.Stop()
	r.genMu.Unlock()
	r.current = nil

	r.notifier.Info("STOP_RADIO_CHANNEL")
	if err := r.command(ctx, "stop", r.transport.Stop); err != nil {
		return err
	}

	r.state.SetStatus(StatusStop)
	return nil
}

// Pause cancels the pending metadata poll, then pauses the transport.
func (r *Radio) Pause(ctx context.Context) error {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()

	if r.current == nil {
		return ErrNotPlaying
	}

	r.tracker.Stop()

	if err := r.command(ctx, "pause", r.transport.Pause); err != nil {
		return err
	}

	r.state.SetStatus(StatusPause)
	return nil
}

// Resume restarts the transport and forces a metadata poll.
func (r *Radio) Resume(ctx context.Context) error {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()

	if r.current == nil {
		return ErrNotPlaying
	}

	if err := r.command(ctx, "resume", r.transport.Resume); err != nil {
		return err
	}

	r.state.SetStatus(StatusPlay)
	r.tracker.Resume()
	return nil
}

// Playback returns the current playback state record.
func (r *Radio) Playback() Record {
	return r.state.Snapshot()
}

// Notices returns the recent user-visible notices.
func (r *Radio) Notices() []Notice {
	return r.notifier.Recent()
}

// KBSSchedule returns the day's programs for a KBS channel and the title
// to show above them.
func (r *Radio) KBSSchedule(ctx context.Context, index int) (string, []schedule.Program, error) {
	if !r.ready() {
		return "", nil, ErrNotReady
	}

	ch, err := r.catalog.Channel(station.KBS, index)
	if err != nil {
		return "", nil, err
	}

	if r.kbs == nil {
		if r.manifestErr != nil {
			return "", nil, r.manifestErr
		}
		return "", nil, ErrNotReady
	}

	ctx, span := tracer.Start(ctx, "radio.schedule")
	programs, err := r.kbs.Schedule(ctx, index)
	if err = traceutil.ErrHandler(span, err, "schedule fetch failed", r.logger); err != nil {
		return "", nil, err
	}

	return ch.Title + " " + r.strings.Get("RADIO_PROGRAM"), programs, nil
}

func (r *Radio) command(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		metricTransport.WithLabelValues(name, "error").Inc()
		r.logger.Error("transport command failed", "command", name, "err", err)
		return fmt.Errorf("transport %s: %w", name, err)
	}
	metricTransport.WithLabelValues(name, "ok").Inc()
	return nil
}

func channelProvider(uri string) string {
	provider, _, _ := station.ParseURI(uri)
	return provider
}

func channelOf(t *station.Track) int {
	_, index, _ := station.ParseURI(t.URI)
	return index
}
