// Package station holds the station catalog and the per-provider resolvers
// that turn a catalog entry into a playable stream URL.
package station

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	KBS  = "kbs"
	SBS  = "sbs"
	MBC  = "mbc"
	Linn = "linn"
	BBC  = "bbc"
)

//go:embed stations.json
var stationsJSON []byte

var ErrUnknownChannel = errors.New("unknown channel")

// Channel is one entry of a provider's channel list.
type Channel struct {
	Title string `json:"title"`
	// Code is the provider's own channel identifier. KBS has none; its
	// wire channel is derived from the index, see KBSChannel.
	Code string `json:"code,omitempty"`
	// URL is the stream URL of a static provider.
	URL string `json:"url,omitempty"`
	// URI is the logical uri, <provider>/<index>.
	URI     string `json:"uri"`
	Artwork string `json:"albumart,omitempty"`

	I18n string `json:"i18n,omitempty"`
}

type Provider struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	URI      string    `json:"uri"`
	Artwork  string    `json:"albumart,omitempty"`
	I18n     string    `json:"i18n,omitempty"`
	Channels []Channel `json:"channels"`
}

// Catalog maps provider and channel index to channel details. It is built
// once and never modified.
type Catalog struct {
	providers []Provider
	byName    map[string]int
}

type catalogFile struct {
	Providers []Provider `json:"providers"`
}

type CatalogOption func(*catalogFile)

// WithChannels replaces the channel list of provider. Used for the
// configurable Linn stations.
func WithChannels(provider string, channels []Channel) CatalogOption {
	return func(f *catalogFile) {
		for i := range f.Providers {
			if f.Providers[i].Name == provider {
				f.Providers[i].Channels = append([]Channel(nil), channels...)
				return
			}
		}
		f.Providers = append(f.Providers, Provider{Name: provider, Title: provider, Channels: channels})
	}
}

// LoadCatalog reads the bundled station list and localizes its titles with str.
func LoadCatalog(str *Strings, opts ...CatalogOption) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(stationsJSON, &f); err != nil {
		return nil, fmt.Errorf("stations.json: %w", err)
	}

	for _, o := range opts {
		o(&f)
	}

	c := &Catalog{byName: make(map[string]int, len(f.Providers))}
	for _, p := range f.Providers {
		if str != nil && p.I18n != "" {
			p.Title = str.Get(p.I18n)
		}
		p.URI = p.Name
		p.Artwork = "logos/" + p.Name + ".png"

		channels := make([]Channel, len(p.Channels))
		for i, ch := range p.Channels {
			if str != nil && ch.I18n != "" {
				ch.Title = str.Get(ch.I18n)
			}
			ch.URI = p.Name + "/" + strconv.Itoa(i)
			ch.Artwork = "logos/" + p.Name + strconv.Itoa(i) + ".png"
			channels[i] = ch
		}
		p.Channels = channels

		c.byName[p.Name] = len(c.providers)
		c.providers = append(c.providers, p)
	}

	return c, nil
}

// Providers returns the providers in display order.
func (c *Catalog) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	for i, p := range c.providers {
		p.Channels = append([]Channel(nil), p.Channels...)
		out[i] = p
	}
	return out
}

func (c *Catalog) Provider(name string) (Provider, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Provider{}, false
	}
	p := c.providers[i]
	p.Channels = append([]Channel(nil), p.Channels...)
	return p, true
}

func (c *Catalog) Channel(provider string, index int) (Channel, error) {
	i, ok := c.byName[provider]
	if !ok {
		return Channel{}, fmt.Errorf("%w: provider %q", ErrUnknownChannel, provider)
	}
	channels := c.providers[i].Channels
	if index < 0 || index >= len(channels) {
		return Channel{}, fmt.Errorf("%w: %s/%d", ErrUnknownChannel, provider, index)
	}
	return channels[index], nil
}

// ParseURI splits a logical uri such as "kbs/2". The channel index is the
// second path segment and is zero-based.
func ParseURI(uri string) (provider string, index int, err error) {
	parts := strings.Split(strings.Trim(uri, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("%w: malformed uri %q", ErrUnknownChannel, uri)
	}

	index, err = strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: malformed uri %q", ErrUnknownChannel, uri)
	}

	return parts[0], index, nil
}
