package config

import (
	"fmt"

	"github.com/spf13/viper"

	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/errs"
)

// Load reads and validates the configuration document at path using
// viper. Any schema or semantic problem is collected and returned as
// a single errs.Config-wrapped error, per spec.md §7 ("ConfigError...
// Fatal at startup").
func Load(path string) (*Root, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errs.Wrap(errs.Config, "read_config", "read configuration file", err)
	}

	var root Root
	if err := v.Unmarshal(&root); err != nil {
		return nil, errs.Wrap(errs.Config, "unmarshal_config", "decode configuration", err)
	}

	applyDefaults(&root)

	if err := Validate(&root); err != nil {
		return nil, err
	}

	return &root, nil
}

// ResolvePath returns the config path from --config flag value (if
// non-empty) else the SCRAPER_CONFIG environment variable, per
// spec.md §6's CLI surface.
func ResolvePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := common.GetEnv("SCRAPER_CONFIG", ""); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("config: no configuration path given (use --config or SCRAPER_CONFIG)")
}

func applyDefaults(root *Root) {
	s := &root.Scraper
	if s.OtelTransport == "" {
		s.OtelTransport = "grpc"
	}
	if s.DefaultTimeFormat == "" {
		s.DefaultTimeFormat = "%s"
	}
	if s.MaxGlobalConcurrency <= 0 {
		s.MaxGlobalConcurrency = 10
	}
	if s.DefaultSourceConcurrency <= 0 {
		s.DefaultSourceConcurrency = 2
	}
	if s.FingerprintStore.Backend == "" {
		s.FingerprintStore.Backend = "sqlite"
	}
	if s.FingerprintStore.MaxEntriesPerSource <= 0 {
		s.FingerprintStore.MaxEntriesPerSource = 100000
	}
	if s.FingerprintStore.DefaultTTLSeconds <= 0 {
		s.FingerprintStore.DefaultTTLSeconds = 86400
	}
	if s.FingerprintStore.CleanupIntervalSeconds <= 0 {
		s.FingerprintStore.CleanupIntervalSeconds = 300
	}
	if s.FingerprintStore.LockRetries <= 0 {
		s.FingerprintStore.LockRetries = 5
	}
	if s.FingerprintStore.LockBackoffSeconds <= 0 {
		s.FingerprintStore.LockBackoffSeconds = 0.1
	}
	if s.FingerprintStore.Sqlite.Path == "" {
		s.FingerprintStore.Sqlite.Path = "./otelscrape.db"
	}

	for i := range root.Sources {
		src := &root.Sources[i]
		if src.Method == "" {
			src.Method = "GET"
		}
		if src.Mode == "" {
			src.Mode = "instant"
		}
		if src.Concurrency <= 0 {
			src.Concurrency = s.DefaultSourceConcurrency
		}
		if src.BodyType == "" {
			src.BodyType = "raw"
		}
		if src.Dedup.TTLSeconds <= 0 {
			src.Dedup.TTLSeconds = s.FingerprintStore.DefaultTTLSeconds
		}
		if src.Dedup.FingerprintMode == "" {
			src.Dedup.FingerprintMode = "full_record"
		}
	}
}
