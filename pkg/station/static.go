package station

import (
	"context"
	"fmt"
)

// StaticResolver serves providers whose stream URLs are known up front.
type StaticResolver struct {
	provider string
	catalog  *Catalog
}

func NewStatic(provider string, catalog *Catalog) *StaticResolver {
	return &StaticResolver{provider: provider, catalog: catalog}
}

func (s *StaticResolver) Resolve(_ context.Context, index int) (*Track, error) {
	ch, err := s.catalog.Channel(s.provider, index)
	if err != nil {
		return nil, err
	}

	track := newTrack(s.provider, ch)
	if ch.URL == "" {
		return track, fmt.Errorf("%w: %s has no stream url", ErrUnknownChannel, ch.URI)
	}

	track.PlayURI = ch.URL
	return track, nil
}
