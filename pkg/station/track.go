package station

import (
	"context"
	"fmt"
	"net/url"

	"github.com/zachfi/personalradio/pkg/schedule"
)

// Track is the result of resolving a logical uri. PlayURI is empty when the
// stream could not be resolved; the caller reports that instead of playing.
type Track struct {
	URI               string `json:"uri"`
	PlayURI           string `json:"playUri"`
	Name              string `json:"name"`
	Title             string `json:"title"`
	Provider          string `json:"provider"`
	ProgramTitle      string `json:"programTitle,omitempty"`
	AlbumArt          string `json:"albumart,omitempty"`
	Duration          int    `json:"duration,omitempty"` // seconds left in the current program
	DisableUIControls bool   `json:"disableUiControls"`

	// Program seeds the schedule tracker for providers with metadata.
	Program *schedule.State `json:"-"`
}

func newTrack(provider string, ch Channel) *Track {
	return &Track{
		URI:      ch.URI,
		Name:     ch.Title,
		Title:    ch.Title,
		Provider: provider,
		AlbumArt: ch.Artwork,
	}
}

// Resolver turns a channel index into a track for one provider.
type Resolver interface {
	Resolve(ctx context.Context, index int) (*Track, error)
}

// Getter fetches a URL body; *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, provider, rawURL string, query url.Values) (string, error)
}

// IncorrectResponseError means a provider answered but not with the payload
// shape expected.
type IncorrectResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *IncorrectResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: incorrect response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: incorrect response: %s", e.Provider, e.Reason)
}

func (e *IncorrectResponseError) Unwrap() error { return e.Err }
