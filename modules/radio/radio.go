package radio

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/zachfi/personalradio/pkg/fetch"
	"github.com/zachfi/personalradio/pkg/schedule"
	"github.com/zachfi/personalradio/pkg/secret"
	"github.com/zachfi/personalradio/pkg/shoutcast"
	"github.com/zachfi/personalradio/pkg/station"
)

var module = "radio"

// Radio resolves station uris to streams and keeps the now-playing state of
// the active stream current.
type Radio struct {
	services.Service
	cfg    *Config
	logger *slog.Logger

	client    *fetch.Client
	playlists *shoutcast.Resolver
	transport Transport
	state     *PlaybackState
	sched     schedule.Config

	strings  *station.Strings
	notifier *Notifier

	trackerOpts []schedule.Option
	tracker     *schedule.Tracker

	// Set in starting, read-only once running.
	catalog     *station.Catalog
	resolvers   map[string]station.Resolver
	kbs         *station.KBSResolver
	manifestErr error

	sessionMu sync.Mutex
	current   *station.Track

	genMu      sync.Mutex
	explodeGen atomic.Uint64
}

type Option func(*Radio)

// WithTransport attaches the player that receives resolved streams.
func WithTransport(t Transport) Option {
	return func(r *Radio) { r.transport = t }
}

// WithHTTPClient sends provider and playlist requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Radio) {
		r.client = fetch.NewWithHTTPClient(hc, r.logger)
		r.playlists = shoutcast.NewResolverWithClient(hc, r.logger)
	}
}

// WithTrackerOptions passes options to the schedule tracker.
func WithTrackerOptions(opts ...schedule.Option) Option {
	return func(r *Radio) { r.trackerOpts = append(r.trackerOpts, opts...) }
}

// New creates and returns a new Radio.
func New(cfg Config, logger slog.Logger, opts ...Option) (*Radio, error) {
	sc, err := cfg.scheduleConfig()
	if err != nil {
		return nil, errors.Wrap(err, "invalid schedule config")
	}

	str, err := station.LoadStrings(cfg.Language)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load strings")
	}

	r := &Radio{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		state:   NewPlaybackState(),
		sched:   sc,
		strings: str,
	}
	r.notifier = NewNotifier(str, cfg.NoticeHistory, r.logger)
	r.client = fetch.New(cfg.HTTP, r.logger)
	r.playlists = shoutcast.NewResolver(cfg.HTTP.Timeout, r.logger)
	r.transport = &logTransport{logger: r.logger}

	for _, o := range opts {
		o(r)
	}

	r.tracker = schedule.NewTracker(sc, r.state, r.logger, r.trackerOpts...)
	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func (r *Radio) starting(ctx context.Context) error {
	catalog, err := station.LoadCatalog(r.strings, station.WithChannels(station.Linn, r.linnChannels(ctx)))
	if err != nil {
		return errors.Wrap(err, "failed to load station catalog")
	}
	r.catalog = catalog

	r.resolvers = map[string]station.Resolver{
		station.Linn: station.NewStatic(station.Linn, catalog),
		station.BBC:  station.NewStatic(station.BBC, catalog),
	}

	// A missing manifest only disables the Korean providers.
	m, err := secret.NewLoader(r.client, r.logger).Load(ctx, r.cfg.ManifestURL)
	if err != nil {
		r.logger.Error("korean radio unavailable", "err", err)
		r.manifestErr = err
		metricManifestLoaded.Set(0)
		return nil
	}
	metricManifestLoaded.Set(1)

	r.kbs = station.NewKBS(r.client, catalog, m.KBS, r.sched, r.logger)
	r.resolvers[station.KBS] = r.kbs
	r.resolvers[station.SBS] = station.NewSBS(r.client, catalog, m, r.logger)
	r.resolvers[station.MBC] = station.NewMBC(r.client, catalog, m.MBC, r.logger)

	r.logger.Info("station catalog ready", "language", r.strings.Language(), "providers", len(catalog.Providers()))
	return nil
}

func (r *Radio) ready() bool {
	return r.Service.State() == services.Running
}

func (r *Radio) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (r *Radio) stopping(_ error) error {
	r.tracker.Close()
	return nil
}

func (r *Radio) linnChannels(ctx context.Context) []station.Channel {
	l := r.cfg.Linn
	channels := []station.Channel{
		{Title: l.JazzName, URL: l.JazzURL},
		{Title: l.RadioName, URL: l.RadioURL},
		{Title: l.ClassicName, URL: l.ClassicURL},
	}

	if !r.cfg.ResolvePlaylists {
		return channels
	}

	for i, ch := range channels {
		if ch.URL == "" {
			continue
		}
		streamURL, err := r.playlists.Resolve(ctx, ch.URL)
		if err != nil {
			r.logger.Warn("failed to resolve linn playlist", "channel", ch.Title, "url", ch.URL, "err", err)
			continue
		}
		channels[i].URL = streamURL
	}

	return channels
}

// isKorean reports whether provider depends on the key manifest.
func isKorean(provider string) bool {
	switch provider {
	case station.KBS, station.SBS, station.MBC:
		return true
	}
	return false
}
