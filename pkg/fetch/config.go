package fetch

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 1
	defaultRetryDelay = 500 * time.Millisecond
)

type Config struct {
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	Retries    int           `yaml:"retries,omitempty"` // extra attempts after the first, transport errors and 5xx only
	RetryDelay time.Duration `yaml:"retry-delay,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.Timeout, util.PrefixConfig(prefix, "timeout"), defaultTimeout, "Timeout for a single provider request.")
	f.IntVar(&cfg.Retries, util.PrefixConfig(prefix, "retries"), defaultRetries, "Extra attempts for provider requests that fail with a transport error or 5xx.")
	f.DurationVar(&cfg.RetryDelay, util.PrefixConfig(prefix, "retry-delay"), defaultRetryDelay, "Delay between provider request attempts.")
}
