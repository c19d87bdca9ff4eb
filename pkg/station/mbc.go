package station

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// MBCFormat is the shape of an MBC stream response.
type MBCFormat int

const (
	MBCUnknown MBCFormat = iota
	// MBCPlainURL is the body of the current protocol: the URL itself.
	MBCPlainURL
	// MBCJSONP is the legacy callback-wrapped object, e.g. ({"AACLiveURL":"..."});
	MBCJSONP
	// MBCJSONField is a bare {"AACLiveURL":"..."} object.
	MBCJSONField
)

func (f MBCFormat) String() string {
	switch f {
	case MBCPlainURL:
		return "plain-url"
	case MBCJSONP:
		return "jsonp"
	case MBCJSONField:
		return "json-field"
	}
	return "unknown"
}

type mbcStream struct {
	AACLiveURL string `json:"AACLiveURL"`
}

// DetectMBCFormat classifies body by its leading content.
func DetectMBCFormat(body string) MBCFormat {
	b := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(b, "http://"), strings.HasPrefix(b, "https://"):
		return MBCPlainURL
	case strings.HasPrefix(b, "{"):
		return MBCJSONField
	case strings.Contains(b, "({") && strings.HasSuffix(strings.TrimSuffix(b, ";"), ")"):
		return MBCJSONP
	}
	return MBCUnknown
}

// DecodeMBC extracts the stream URL from any known MBC response shape.
func DecodeMBC(body string) (string, MBCFormat, error) {
	b := strings.TrimSpace(body)
	format := DetectMBCFormat(b)

	switch format {
	case MBCPlainURL:
		if strings.ContainsAny(b, " \n\t") {
			return "", format, &IncorrectResponseError{Provider: MBC, Reason: "plain url response has trailing content"}
		}
		return b, format, nil
	case MBCJSONP:
		b = strings.TrimSuffix(b, ";")
		b = strings.TrimSuffix(b, ")")
		b = b[strings.Index(b, "(")+1:]
		fallthrough
	case MBCJSONField:
		var resp mbcStream
		if err := json.Unmarshal([]byte(b), &resp); err != nil {
			return "", format, &IncorrectResponseError{Provider: MBC, Reason: format.String() + " response is not JSON", Err: err}
		}
		if resp.AACLiveURL == "" {
			return "", format, &IncorrectResponseError{Provider: MBC, Reason: "AACLiveURL missing"}
		}
		return resp.AACLiveURL, format, nil
	}

	return "", format, &IncorrectResponseError{Provider: MBC, Reason: "unrecognized response"}
}

// MBCResolver asks MBC for an HLS URL with a cache-busting query.
type MBCResolver struct {
	getter  Getter
	catalog *Catalog
	base    string
	nocash  func() string
	logger  *slog.Logger
}

func NewMBC(getter Getter, catalog *Catalog, base string, logger *slog.Logger) *MBCResolver {
	return &MBCResolver{
		getter:  getter,
		catalog: catalog,
		base:    base,
		nocash:  func() string { return uuid.NewString() },
		logger:  logger.With("provider", MBC),
	}
}

func (m *MBCResolver) Resolve(ctx context.Context, index int) (*Track, error) {
	ch, err := m.catalog.Channel(MBC, index)
	if err != nil {
		return nil, err
	}
	track := newTrack(MBC, ch)

	query := url.Values{
		"channel":  {ch.Code},
		"agent":    {"webapp"},
		"protocol": {"M3U8"},
		"nocash":   {m.nocash()},
	}

	body, err := m.getter.Get(ctx, MBC, m.base, query)
	if err != nil {
		return track, err
	}

	streamURL, format, err := DecodeMBC(body)
	if err != nil {
		return track, err
	}
	m.logger.Debug("resolved stream", "channel", index, "format", format)

	track.PlayURI = streamURL
	return track, nil
}
