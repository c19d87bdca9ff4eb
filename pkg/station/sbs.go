package station

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/url"
	"strings"

	"github.com/zachfi/personalradio/pkg/secret"
)

// SBSResolver fetches an encrypted stream URL and decrypts it with the
// manifest's secondary key. SBS carries no program metadata.
type SBSResolver struct {
	getter    Getter
	catalog   *Catalog
	base      string
	key       []byte
	algorithm string
	logger    *slog.Logger
}

func NewSBS(getter Getter, catalog *Catalog, m *secret.Manifest, logger *slog.Logger) *SBSResolver {
	return &SBSResolver{
		getter:    getter,
		catalog:   catalog,
		base:      m.SBS,
		key:       m.SBSKey,
		algorithm: m.SBSAlgorithm,
		logger:    logger.With("provider", SBS),
	}
}

func (s *SBSResolver) Resolve(ctx context.Context, index int) (*Track, error) {
	ch, err := s.catalog.Channel(SBS, index)
	if err != nil {
		return nil, err
	}
	track := newTrack(SBS, ch)

	body, err := s.getter.Get(ctx, SBS, s.base+ch.Code, url.Values{"device": {"mobile"}})
	if err != nil {
		return track, err
	}

	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return track, &IncorrectResponseError{Provider: SBS, Reason: "body is not base64", Err: err}
	}

	plain, err := secret.DecryptNoIV(s.algorithm, s.key, ct)
	if err != nil {
		return track, &IncorrectResponseError{Provider: SBS, Reason: "cannot decrypt stream url", Err: err}
	}

	streamURL := strings.TrimSpace(plain)
	if u, err := url.Parse(streamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return track, &IncorrectResponseError{Provider: SBS, Reason: "decrypted value is not a url", Err: err}
	}

	track.PlayURI = streamURL
	return track, nil
}
