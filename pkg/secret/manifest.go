// Package secret loads the remote key manifest that holds every provider's
// base URL and signing secret in encrypted form.
package secret

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
)

// SecretFetchError means the manifest could not be fetched, decoded or
// decrypted. No provider stream can be resolved while it stands.
type SecretFetchError struct {
	URL string
	Err error
}

func (e *SecretFetchError) Error() string {
	return fmt.Sprintf("secret manifest %s: %v", e.URL, e.Err)
}

func (e *SecretFetchError) Unwrap() error { return e.Err }

// KBS holds the decrypted KBS endpoints and signing secret.
type KBS struct {
	Stream    string // base URL every signed fragment is appended to
	Agent     string // signing secret
	Timestamp string // endpoint returning a fresh reqts token
	Param     string // stream parameter endpoint, channel appended
	Meta      string // schedule endpoint, channel appended
}

// Manifest is the decrypted manifest. It is immutable once loaded.
type Manifest struct {
	KBS KBS
	MBC string
	SBS string

	SBSKey       []byte
	SBSAlgorithm string
}

type rawManifest struct {
	SecretKey  string `json:"secretKey"`
	Algorithm  string `json:"algorithm"`
	StationKey string `json:"stationKey"`
	Algorithm2 string `json:"algorithm2"`

	KBS      string `json:"kbs"`
	KBSAgent string `json:"kbsAgent"`
	KBSTs    string `json:"kbsTs"`
	KBSParam string `json:"kbsParam"`
	KBSMeta  string `json:"kbsMeta"`
	MBC      string `json:"mbc"`
	SBS      string `json:"sbs"`
}

// Getter fetches a URL body; *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, provider, rawURL string, query url.Values) (string, error)
}

type Loader struct {
	getter Getter
	logger *slog.Logger
}

func NewLoader(getter Getter, logger *slog.Logger) *Loader {
	return &Loader{getter: getter, logger: logger}
}

// Load fetches manifestURL once and decrypts every field. Any failure is
// returned as a *SecretFetchError.
func (l *Loader) Load(ctx context.Context, manifestURL string) (*Manifest, error) {
	fail := func(err error) (*Manifest, error) {
		return nil, &SecretFetchError{URL: manifestURL, Err: err}
	}

	if manifestURL == "" {
		return fail(fmt.Errorf("no manifest url configured"))
	}

	body, err := l.getter.Get(ctx, "manifest", manifestURL, nil)
	if err != nil {
		return fail(err)
	}

	var raw rawManifest
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return fail(fmt.Errorf("decode manifest: %w", err))
	}

	m, err := raw.decrypt()
	if err != nil {
		return fail(err)
	}

	l.logger.Info("secret manifest loaded", "algorithm", raw.Algorithm, "sbs_algorithm", raw.Algorithm2)

	return m, nil
}

func (r rawManifest) decrypt() (*Manifest, error) {
	if r.SecretKey == "" || r.Algorithm == "" {
		return nil, fmt.Errorf("manifest lacks secretKey or algorithm")
	}

	m := &Manifest{}
	fields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"kbs", r.KBS, &m.KBS.Stream},
		{"kbsAgent", r.KBSAgent, &m.KBS.Agent},
		{"kbsTs", r.KBSTs, &m.KBS.Timestamp},
		{"kbsParam", r.KBSParam, &m.KBS.Param},
		{"kbsMeta", r.KBSMeta, &m.KBS.Meta},
		{"mbc", r.MBC, &m.MBC},
		{"sbs", r.SBS, &m.SBS},
	}

	for _, f := range fields {
		if f.src == "" {
			return nil, fmt.Errorf("manifest lacks %s", f.name)
		}
		pt, err := DecryptString(r.Algorithm, r.SecretKey, f.src)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", f.name, err)
		}
		*f.dst = pt
	}

	key, err := base64.StdEncoding.DecodeString(r.StationKey)
	if err != nil {
		return nil, fmt.Errorf("decode stationKey: %w", err)
	}
	if r.Algorithm2 == "" {
		return nil, fmt.Errorf("manifest lacks algorithm2")
	}
	m.SBSKey = key
	m.SBSAlgorithm = r.Algorithm2

	return m, nil
}
