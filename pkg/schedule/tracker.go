package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zachfi/personalradio/pkg/rptimer"
	"github.com/zachfi/personalradio/pkg/traceutil"
)

var (
	metricPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "personalradio",
		Name:      "metadata_polls_total",
		Help:      "Now-playing metadata polls by provider and outcome.",
	}, []string{"provider", "outcome"})

	metricRearms = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "personalradio",
		Name:      "refresh_timer_rearms_total",
		Help:      "Refresh timer re-arms by reason.",
	}, []string{"reason"})
)

var tracer = otel.Tracer("github.com/zachfi/personalradio/pkg/schedule")

// Phase is the tracker's position in its poll cycle.
type Phase int

const (
	Idle Phase = iota
	AwaitingFirstPoll
	Stable
	Retrying
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingFirstPoll:
		return "awaiting-first-poll"
	case Stable:
		return "stable"
	case Retrying:
		return "retrying"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// State is the per-stream program record. There is one per active stream.
type State struct {
	Provider    string
	Channel     int
	ProgramCode string
	Remaining   time.Duration
	MetaQuery   string
	Retry       int
}

// Source looks up the program airing now for the stream st describes. It
// returns the meta query fragment it used alongside the program.
type Source interface {
	ActiveProgram(ctx context.Context, st State) (Program, string, error)
}

type UpdateKind int

const (
	// ProgramChanged carries a new title, artwork and duration.
	ProgramChanged UpdateKind = iota
	// DurationReset zeroes the countdown; the program length is unknown.
	DurationReset
)

type Update struct {
	Kind         UpdateKind
	Name         string
	ProgramTitle string
	AlbumArt     string
	Duration     time.Duration
}

// Publisher receives now-playing changes for the host's playback state.
type Publisher interface {
	Publish(Update)
}

type poll struct {
	gen   uint64
	force bool
}

type stream struct {
	state State
	src   Source
	title string
}

// Tracker polls program metadata exactly when the current program should
// end, retries briefly when the provider has not moved on yet, and gives up
// after MaxRetries. Every control call supersedes in-flight polls.
type Tracker struct {
	cfg       Config
	logger    *slog.Logger
	publisher Publisher
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	timer  *rptimer.Timer[poll]

	mu     sync.Mutex
	gen    uint64
	phase  Phase
	active *stream
}

type Option func(*Tracker)

// WithAfterFunc replaces time.AfterFunc, for tests.
func WithAfterFunc(f rptimer.AfterFunc) Option {
	return func(t *Tracker) { t.timer = rptimer.NewWithAfterFunc(t.fire, f) }
}

// WithNow replaces time.Now, for tests.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(cfg Config, publisher Publisher, logger *slog.Logger, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		cfg:       cfg.WithDefaults(),
		logger:    logger.With("component", "schedule"),
		publisher: publisher,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	t.timer = rptimer.New(t.fire)

	for _, o := range opts {
		o(t)
	}

	return t
}

// Start replaces the tracked stream and polls it immediately. src may be nil
// for providers without program metadata; the tracker then stays idle.
func (t *Tracker) Start(st State, src Source, channelTitle string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timer.Clear()
	t.gen++
	st.Retry = 0
	t.active = &stream{state: st, src: src, title: channelTitle}

	if src == nil {
		t.phase = Idle
		return
	}

	t.phase = AwaitingFirstPoll
	t.timer.Reschedule(0, poll{gen: t.gen, force: true})
	metricRearms.WithLabelValues("start").Inc()
}

// Stop cancels any pending poll. The stream is kept so Resume can pick it up.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timer.Clear()
	t.gen++
	if t.active != nil {
		t.phase = Terminated
	}
}

// Supersede cancels any pending poll and forgets the stream.
func (t *Tracker) Supersede() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timer.Clear()
	t.gen++
	t.active = nil
	t.phase = Idle
}

// Resume forces a poll for a stream that carries program metadata.
func (t *Tracker) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil || t.active.src == nil {
		return false
	}

	t.timer.Clear()
	t.gen++
	t.phase = AwaitingFirstPoll
	t.timer.Reschedule(0, poll{gen: t.gen, force: true})
	metricRearms.WithLabelValues("resume").Inc()

	return true
}

// Close stops the tracker for good and aborts in-flight polls.
func (t *Tracker) Close() {
	t.Supersede()
	t.cancel()
}

// Snapshot returns a copy of the tracked state and the current phase.
func (t *Tracker) Snapshot() (State, Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return State{}, t.phase, false
	}
	return t.active.state, t.phase, true
}

func (t *Tracker) fire(p poll) {
	t.mu.Lock()
	if p.gen != t.gen || t.active == nil || t.active.src == nil {
		t.mu.Unlock()
		return
	}
	st := t.active.state
	src := t.active.src
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.PollTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "schedule.poll", trace.WithAttributes(
		attribute.String("provider", st.Provider),
		attribute.Int("channel", st.Channel),
		attribute.Bool("forced", p.force),
	))
	prog, query, err := src.ActiveProgram(ctx, st)
	_ = traceutil.ErrHandler(span, err, "metadata poll failed", t.logger)

	t.mu.Lock()
	defer t.mu.Unlock()

	if p.gen != t.gen || t.active == nil {
		metricPolls.WithLabelValues(st.Provider, "superseded").Inc()
		return
	}

	t.apply(p, prog, query, err)
}

func (t *Tracker) apply(p poll, prog Program, query string, err error) {
	s := t.active
	provider := s.state.Provider

	if err != nil {
		metricPolls.WithLabelValues(provider, "error").Inc()
		s.state.Remaining = 0
		s.state.Retry = 0
		t.phase = Stable
		t.publisher.Publish(Update{Kind: DurationReset})
		return
	}

	if query != "" {
		s.state.MetaQuery = query
	}

	if !p.force && prog.Code == s.state.ProgramCode {
		s.state.Retry++
		if s.state.Retry > max(t.cfg.MaxRetries, 0) {
			metricPolls.WithLabelValues(provider, "gave-up").Inc()
			t.logger.Info("program metadata did not change, giving up", "provider", provider, "channel", s.state.Channel, "program", prog.Code)
			s.state.Retry = 0
			s.state.Remaining = 0
			t.phase = Stable
			t.publisher.Publish(Update{Kind: DurationReset})
			return
		}

		metricPolls.WithLabelValues(provider, "unchanged").Inc()
		t.phase = Retrying
		t.timer.Reschedule(t.cfg.RetryInterval, poll{gen: t.gen})
		metricRearms.WithLabelValues("retry").Inc()
		return
	}

	metricPolls.WithLabelValues(provider, "changed").Inc()
	s.state.ProgramCode = prog.Code
	s.state.Retry = 0
	t.phase = Stable

	var (
		remaining time.Duration
		rearm     time.Duration
	)
	if prog.End != "" {
		d, err := Remaining(prog.End, t.now(), t.cfg.Location, t.cfg.Margin)
		switch {
		case err != nil:
			t.logger.Warn("unparseable program end time", "provider", provider, "end", prog.End, "err", err)
		case d > 0:
			remaining = d
			rearm = d
		default:
			// The announced program should already be over.
			rearm = t.cfg.RetryInterval
		}
	}
	s.state.Remaining = remaining

	name := s.title
	if prog.Title != "" {
		name = s.title + "(" + prog.Title + ")"
	}

	t.publisher.Publish(Update{
		Kind:         ProgramChanged,
		Name:         name,
		ProgramTitle: prog.Title,
		AlbumArt:     prog.Image,
		Duration:     remaining,
	})

	if rearm > 0 {
		t.timer.Reschedule(rearm, poll{gen: t.gen})
		metricRearms.WithLabelValues("program-end").Inc()
	}
}
