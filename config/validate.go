package config

import (
	"fmt"
	"os"
	"strings"

	"eve.evalgo.org/otelscrape/errs"
)

// Validator collects every configuration problem found so a single
// startup error reports the whole list rather than failing fast on
// the first field.
type Validator struct {
	errors []string
}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireEnv records an error unless name names a currently-set
// environment variable. Secrets are always referenced by name in
// config, never inlined; an unresolved name is a ConfigError at
// startup, per spec.md §6.
func (v *Validator) RequireEnv(field, name string) {
	if name == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	if _, ok := os.LookupEnv(name); !ok {
		v.errors = append(v.errors, fmt.Sprintf("%s references unresolved environment variable %q", field, name))
	}
}

func (v *Validator) Add(msg string) { v.errors = append(v.errors, msg) }

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

func (v *Validator) Errors() []string { return v.errors }

// Validate checks the full document: global scraper settings, the
// fingerprint store backend, and every source's auth/mode/rangeKeys
// combination.
func Validate(root *Root) error {
	v := NewValidator()

	s := root.Scraper
	v.RequireString("scraper.serviceName", s.ServiceName)
	v.RequireOneOf("scraper.otelTransport", s.OtelTransport, []string{"grpc", "http"})
	v.RequireOneOf("scraper.fingerprintStore.backend", s.FingerprintStore.Backend, []string{"sqlite", "valkey", "redis"})
	v.RequirePositiveInt("scraper.maxGlobalConcurrency", s.MaxGlobalConcurrency)

	if s.FingerprintStore.Backend == "sqlite" {
		v.RequireString("scraper.fingerprintStore.sqlite.path", s.FingerprintStore.Sqlite.Path)
	} else {
		v.RequireString("scraper.fingerprintStore.valkey.host", s.FingerprintStore.Valkey.Host)
		v.RequirePositiveInt("scraper.fingerprintStore.valkey.port", s.FingerprintStore.Valkey.Port)
	}

	if s.EnableAdminAPI {
		v.RequireEnv("scraper.adminSecretEnv", s.AdminSecretEnv)
		v.RequirePositiveInt("scraper.servicePort", s.ServicePort)
	}

	names := make(map[string]bool, len(root.Sources))
	for i, src := range root.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if src.Name != "" {
			prefix = fmt.Sprintf("sources[%s]", src.Name)
			if names[src.Name] {
				v.Add(fmt.Sprintf("%s: duplicate source name", prefix))
			}
			names[src.Name] = true
		}
		v.RequireString(prefix+".name", src.Name)
		v.RequireString(prefix+".baseUrl", src.BaseURL)
		v.RequireOneOf(prefix+".mode", src.Mode, []string{"instant", "range"})

		validateAuth(v, prefix, src.Auth)

		if src.Mode == "range" {
			v.RequireOneOf(prefix+".rangeKeys.kind", src.RangeKeys.Kind, []string{"explicit", "relative"})
			switch src.RangeKeys.Kind {
			case "explicit":
				v.RequireString(prefix+".rangeKeys.startKey", src.RangeKeys.StartKey)
				v.RequireString(prefix+".rangeKeys.endKey", src.RangeKeys.EndKey)
				if src.RangeKeys.FirstScrapeStart == "" {
					v.RequireString(prefix+".frequency", src.Frequency)
				}
			case "relative":
				v.RequireString(prefix+".rangeKeys.unit", src.RangeKeys.RelativeUnit)
				v.RequireString(prefix+".rangeKeys.value", src.RangeKeys.RelativeValue)
				if src.RangeKeys.RelativeValue == "from-config" {
					v.RequireString(prefix+".frequency", src.Frequency)
				}
			}
		}

		if src.Dedup.Enabled {
			v.RequireOneOf(prefix+".dedup.fingerprintMode", src.Dedup.FingerprintMode, []string{"full_record", "keys"})
			if src.Dedup.FingerprintMode == "keys" && len(src.Dedup.FingerprintKeys) == 0 {
				v.Add(fmt.Sprintf("%s.dedup.fingerprintKeys: required when fingerprintMode=keys", prefix))
			}
		}

		for _, h := range src.Histograms {
			if !strictlyAscending(h.Buckets) {
				v.Add(fmt.Sprintf("%s.histograms[%s].buckets: must be strictly ascending", prefix, h.Name))
			}
		}
	}

	if !v.IsValid() {
		return errs.New(errs.Config, "validate", fmt.Errorf("configuration validation failed: %s", strings.Join(v.Errors(), "; ")))
	}
	return nil
}

func validateAuth(v *Validator, prefix string, a AuthConfig) {
	field := prefix + ".auth.type"
	switch a.Type {
	case "", "none":
	case "basic":
		v.RequireEnv(field+".userEnv", a.UserEnv)
		v.RequireEnv(field+".passEnv", a.PassEnv)
	case "header_api_key":
		v.RequireString(field+".header", a.Header)
		v.RequireEnv(field+".valueEnv", a.ValueEnv)
	case "oauth_static":
		v.RequireEnv(field+".valueEnv", a.ValueEnv)
	case "oauth_runtime":
		v.RequireString(field+".getTokenEndpoint", a.GetTokenEndpoint)
	case "azure_ad":
		v.RequireEnv(field+".tenantIdEnv", a.TenantIDEnv)
		v.RequireEnv(field+".clientIdEnv", a.ClientIDEnv)
		v.RequireEnv(field+".clientSecretEnv", a.ClientSecretEnv)
	default:
		v.RequireOneOf(field, a.Type, []string{"none", "basic", "header_api_key", "oauth_static", "oauth_runtime", "azure_ad"})
	}
}

func strictlyAscending(vals []float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			return false
		}
	}
	return true
}
