package sourceauth

import (
	"fmt"
	"net/url"
	"os"

	"eve.evalgo.org/otelscrape/config"
)

// FromConfig builds the Authenticator named by cfg.Type, per spec.md
// §4.4's six auth variants. Config validation (config.validateAuth)
// already guarantees the required env var names are set by the time
// this runs; it only needs to wire fields through.
func FromConfig(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Type {
	case "", "none":
		return None{}, nil
	case "basic":
		return Basic{UserEnv: cfg.UserEnv, PassEnv: cfg.PassEnv}, nil
	case "header_api_key":
		return HeaderAPIKey{Header: cfg.Header, ValueEnv: cfg.ValueEnv}, nil
	case "oauth_static":
		return OAuthStatic{TokenEnv: cfg.ValueEnv}, nil
	case "oauth_runtime":
		body := url.Values{}
		for k, v := range cfg.Body {
			body.Set(k, v)
		}
		runtime := NewOAuthRuntime(cfg.GetTokenEndpoint, cfg.TokenKey, cfg.ExtraHeaders, body)
		if cfg.Method != "" {
			runtime.Method = cfg.Method
		}
		return runtime, nil
	case "azure_ad":
		tenant := os.Getenv(cfg.TenantIDEnv)
		clientID := os.Getenv(cfg.ClientIDEnv)
		secret := os.Getenv(cfg.ClientSecretEnv)
		resource := os.Getenv(cfg.ResourceEnv)
		return NewAzureAD(tenant, clientID, secret, resource), nil
	default:
		return nil, fmt.Errorf("sourceauth: unknown auth type %q", cfg.Type)
	}
}
