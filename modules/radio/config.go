package radio

import (
	"flag"
	"fmt"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/personalradio/pkg/fetch"
	"github.com/zachfi/personalradio/pkg/schedule"
)

const (
	defaultTimezone      = "Asia/Seoul"
	defaultNoticeHistory = 20
)

type Config struct {
	ManifestURL      string        `yaml:"manifest-url,omitempty"`
	Language         string        `yaml:"language,omitempty"`
	Timezone         string        `yaml:"timezone,omitempty"`
	RetryInterval    time.Duration `yaml:"retry-interval,omitempty"`
	MaxMetaRetries   int           `yaml:"max-meta-retries,omitempty"`
	FinishMargin     time.Duration `yaml:"finish-margin,omitempty"`
	ResolvePlaylists bool          `yaml:"resolve-playlists,omitempty"`
	NoticeHistory    int           `yaml:"notice-history,omitempty"`
	HTTP             fetch.Config  `yaml:"http,omitempty"`
	Linn             LinnConfig    `yaml:"linn,omitempty"`
}

// LinnConfig names the three Linn channels and where they stream from. The
// URLs may point at .pls/.m3u playlists when resolve-playlists is set.
type LinnConfig struct {
	JazzName    string `yaml:"jazz-name,omitempty"`
	JazzURL     string `yaml:"jazz-url,omitempty"`
	RadioName   string `yaml:"radio-name,omitempty"`
	RadioURL    string `yaml:"radio-url,omitempty"`
	ClassicName string `yaml:"classic-name,omitempty"`
	ClassicURL  string `yaml:"classic-url,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.ManifestURL, util.PrefixConfig(prefix, "manifest-url"), "", "URL of the encrypted key manifest. Korean providers stay unavailable without it.")
	f.StringVar(&cfg.Language, util.PrefixConfig(prefix, "language"), "en", "Language code for station titles and notices.")
	f.StringVar(&cfg.Timezone, util.PrefixConfig(prefix, "timezone"), defaultTimezone, "Time zone of the broadcaster schedules.")
	f.DurationVar(&cfg.RetryInterval, util.PrefixConfig(prefix, "retry-interval"), schedule.DefaultRetryInterval, "Delay before re-polling metadata that has not changed yet.")
	f.IntVar(&cfg.MaxMetaRetries, util.PrefixConfig(prefix, "max-meta-retries"), schedule.DefaultMaxRetries, "Unchanged metadata polls before the program duration is dropped. 0 drops it on the first.")
	f.DurationVar(&cfg.FinishMargin, util.PrefixConfig(prefix, "finish-margin"), schedule.DefaultMargin, "Time added after a program's end before polling for the next one.")
	f.BoolVar(&cfg.ResolvePlaylists, util.PrefixConfig(prefix, "resolve-playlists"), false, "Resolve Linn playlist URLs to stream URLs at startup.")
	f.IntVar(&cfg.NoticeHistory, util.PrefixConfig(prefix, "notice-history"), defaultNoticeHistory, "Number of recent notices kept for the notifications endpoint.")

	cfg.HTTP.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "http"), f)
	cfg.Linn.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "linn"), f)
}

func (cfg *LinnConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.JazzName, util.PrefixConfig(prefix, "jazz-name"), "Linn Jazz", "Display name of the first Linn channel.")
	f.StringVar(&cfg.JazzURL, util.PrefixConfig(prefix, "jazz-url"), "http://radio.linn.co.uk:8000/autodj", "Stream or playlist URL of the first Linn channel.")
	f.StringVar(&cfg.RadioName, util.PrefixConfig(prefix, "radio-name"), "Linn Radio", "Display name of the second Linn channel.")
	f.StringVar(&cfg.RadioURL, util.PrefixConfig(prefix, "radio-url"), "http://radio.linn.co.uk:8003/autodj", "Stream or playlist URL of the second Linn channel.")
	f.StringVar(&cfg.ClassicName, util.PrefixConfig(prefix, "classic-name"), "Linn Classical", "Display name of the third Linn channel.")
	f.StringVar(&cfg.ClassicURL, util.PrefixConfig(prefix, "classic-url"), "http://radio.linn.co.uk:8004/autodj", "Stream or playlist URL of the third Linn channel.")
}

func (cfg *Config) scheduleConfig() (schedule.Config, error) {
	sc := schedule.Config{
		RetryInterval: cfg.RetryInterval,
		MaxRetries:    cfg.MaxMetaRetries,
		Margin:        cfg.FinishMargin,
	}
	switch {
	case cfg.MaxMetaRetries < 0:
		return sc, fmt.Errorf("max-meta-retries must not be negative, got %d", cfg.MaxMetaRetries)
	case cfg.MaxMetaRetries == 0:
		sc.MaxRetries = schedule.NoRetries
	}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return sc, err
		}
		sc.Location = loc
	}
	return sc.WithDefaults(), nil
}
