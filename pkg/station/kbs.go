package station

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zachfi/personalradio/pkg/schedule"
	"github.com/zachfi/personalradio/pkg/secret"
	"github.com/zachfi/personalradio/pkg/signing"
)

type kbsStream struct {
	RealServiceURL string `json:"real_service_url"`
}

type kbsSchedule struct {
	Data []kbsProgram `json:"data"`
}

type kbsProgram struct {
	ProgramCode   string `json:"program_code"`
	ProgramTitle  string `json:"program_title"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	RelationImage string `json:"relation_image"`
}

func (p kbsProgram) program() schedule.Program {
	return schedule.Program{
		Code:  p.ProgramCode,
		Title: p.ProgramTitle,
		Start: p.StartTime,
		End:   p.EndTime,
		Image: p.RelationImage,
	}
}

// KBSChannel is the channel number KBS expects on the wire. It is one-based,
// unlike catalog indexes.
func KBSChannel(index int) string {
	return strconv.Itoa(index + 1)
}

// KBSResolver signs a stream and a schedule request per resolution and
// fetches both concurrently. It is also the tracker's metadata source.
type KBSResolver struct {
	getter    Getter
	catalog   *Catalog
	endpoints secret.KBS
	signer    *signing.Builder
	sched     schedule.Config
	now       func() time.Time
	logger    *slog.Logger
}

func NewKBS(getter Getter, catalog *Catalog, endpoints secret.KBS, sched schedule.Config, logger *slog.Logger) *KBSResolver {
	return &KBSResolver{
		getter:    getter,
		catalog:   catalog,
		endpoints: endpoints,
		signer:    signing.NewBuilder(getter, endpoints.Timestamp, endpoints.Agent),
		sched:     sched.WithDefaults(),
		now:       time.Now,
		logger:    logger.With("provider", KBS),
	}
}

func (k *KBSResolver) Resolve(ctx context.Context, index int) (*Track, error) {
	ch, err := k.catalog.Channel(KBS, index)
	if err != nil {
		return nil, err
	}
	track := newTrack(KBS, ch)

	pair, err := k.signer.SignPair(ctx, k.endpoints.Param, k.endpoints.Meta, KBSChannel(index))
	if err != nil {
		return track, err
	}

	var (
		streamURL string
		prog      schedule.Program
		progErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		streamURL, err = k.stream(gctx, pair.Stream)
		return err
	})
	g.Go(func() error {
		// Missing metadata does not stop playback.
		prog, progErr = k.activeProgram(gctx, pair.Meta)
		return nil
	})
	if err := g.Wait(); err != nil {
		return track, err
	}

	track.PlayURI = streamURL
	track.DisableUIControls = true

	seed := &schedule.State{Provider: KBS, Channel: index, MetaQuery: pair.Meta}
	track.Program = seed

	if progErr != nil {
		k.logger.Warn("no program metadata", "channel", index, "err", progErr)
		return track, nil
	}

	seed.ProgramCode = prog.Code
	if prog.Title != "" {
		track.ProgramTitle = prog.Title
		track.Name = ch.Title + "(" + prog.Title + ")"
	}
	if prog.Image != "" {
		track.AlbumArt = prog.Image
	}
	if prog.End != "" {
		remaining, err := schedule.Remaining(prog.End, k.now(), k.sched.Location, k.sched.Margin)
		if err != nil {
			k.logger.Warn("unparseable program end time", "end", prog.End, "err", err)
		} else if remaining > 0 {
			seed.Remaining = remaining
			track.Duration = int(remaining / time.Second)
		}
	}

	return track, nil
}

// ActiveProgram signs a fresh schedule request for the tracked channel and
// returns the program on air.
func (k *KBSResolver) ActiveProgram(ctx context.Context, st schedule.State) (schedule.Program, string, error) {
	fragment, err := k.signer.SignOne(ctx, k.endpoints.Meta+KBSChannel(st.Channel))
	if err != nil {
		return schedule.Program{}, "", err
	}

	prog, err := k.activeProgram(ctx, fragment)
	return prog, fragment, err
}

// Schedule returns the day's programs for the channel at index.
func (k *KBSResolver) Schedule(ctx context.Context, index int) ([]schedule.Program, error) {
	if _, err := k.catalog.Channel(KBS, index); err != nil {
		return nil, err
	}

	fragment, err := k.signer.SignOne(ctx, k.endpoints.Meta+KBSChannel(index))
	if err != nil {
		return nil, err
	}

	data, err := k.schedule(ctx, fragment)
	if err != nil {
		return nil, err
	}

	programs := make([]schedule.Program, 0, len(data))
	for _, p := range data {
		programs = append(programs, p.program())
	}
	return programs, nil
}

func (k *KBSResolver) stream(ctx context.Context, fragment string) (string, error) {
	body, err := k.getter.Get(ctx, KBS, k.endpoints.Stream+fragment, nil)
	if err != nil {
		return "", err
	}

	var resp kbsStream
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", &IncorrectResponseError{Provider: KBS, Reason: "stream response is not JSON", Err: err}
	}
	if resp.RealServiceURL == "" {
		return "", &IncorrectResponseError{Provider: KBS, Reason: "real_service_url missing"}
	}

	return resp.RealServiceURL, nil
}

func (k *KBSResolver) activeProgram(ctx context.Context, fragment string) (schedule.Program, error) {
	data, err := k.schedule(ctx, fragment)
	if err != nil {
		return schedule.Program{}, err
	}
	if len(data) == 0 {
		return schedule.Program{}, &IncorrectResponseError{Provider: KBS, Reason: "empty schedule"}
	}
	return data[0].program(), nil
}

func (k *KBSResolver) schedule(ctx context.Context, fragment string) ([]kbsProgram, error) {
	body, err := k.getter.Get(ctx, KBS, k.endpoints.Stream+fragment, nil)
	if err != nil {
		return nil, err
	}

	var resp kbsSchedule
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, &IncorrectResponseError{Provider: KBS, Reason: "schedule response is not JSON", Err: err}
	}
	return resp.Data, nil
}
