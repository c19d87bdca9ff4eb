// Package signing builds the authenticated query fragments KBS expects: a
// server-issued timestamp and an uppercase SHA-256 auth code, base64 encoded.
package signing

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/zachfi/personalradio/pkg/fetch"
)

const provider = "kbs"

// Sign returns the uppercase hex SHA-256 of secret+timestamp+endpoint.
func Sign(secret, timestamp, endpoint string) string {
	sum := sha256.Sum256([]byte(secret + timestamp + endpoint))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Fragment returns base64(endpoint&reqts=<ts>&authcode=<sig>) without '=' padding.
func Fragment(secret, timestamp, endpoint string) string {
	payload := endpoint + "&reqts=" + timestamp + "&authcode=" + Sign(secret, timestamp, endpoint)
	return base64.RawStdEncoding.EncodeToString([]byte(payload))
}

type Getter interface {
	Get(ctx context.Context, provider, rawURL string, query url.Values) (string, error)
}

// Builder signs endpoints with a timestamp fetched from the provider.
type Builder struct {
	getter       Getter
	timestampURL string
	secret       string
}

func NewBuilder(getter Getter, timestampURL, secret string) *Builder {
	return &Builder{getter: getter, timestampURL: timestampURL, secret: secret}
}

// Pair is a stream fragment and a meta fragment signed with one timestamp.
type Pair struct {
	Timestamp string
	Stream    string
	Meta      string
}

// SignPair fetches one timestamp and signs paramEndpoint+channel and
// metaEndpoint+channel with it. Nothing is returned if the timestamp fetch fails.
func (b *Builder) SignPair(ctx context.Context, paramEndpoint, metaEndpoint, channel string) (Pair, error) {
	ts, err := b.Timestamp(ctx)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		Timestamp: ts,
		Stream:    Fragment(b.secret, ts, paramEndpoint+channel),
		Meta:      Fragment(b.secret, ts, metaEndpoint+channel),
	}, nil
}

// SignOne signs a single endpoint with a fresh timestamp.
func (b *Builder) SignOne(ctx context.Context, endpoint string) (string, error) {
	ts, err := b.Timestamp(ctx)
	if err != nil {
		return "", err
	}
	return Fragment(b.secret, ts, endpoint), nil
}

// Timestamp returns the provider's reqts token; the body is the token verbatim.
func (b *Builder) Timestamp(ctx context.Context) (string, error) {
	body, err := b.getter.Get(ctx, provider, b.timestampURL, nil)
	if err != nil {
		return "", err
	}

	ts := strings.TrimSpace(body)
	if ts == "" {
		return "", &fetch.StreamServerError{Provider: provider, URL: b.timestampURL, Err: errors.New("empty timestamp")}
	}

	return ts, nil
}
