package sourceauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// AzureAD obtains bearer tokens via the client-credentials flow using
// azidentity.ClientSecretCredential rather than a raw POST to the
// tenant token endpoint, reusing the SDK's own token caching and
// retry policy instead of reimplementing it.
type AzureAD struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	mu   sync.Mutex
	cred *azidentity.ClientSecretCredential
}

func NewAzureAD(tenantID, clientID, clientSecret, resource string) *AzureAD {
	scope := resource
	if scope == "" {
		scope = "https://management.azure.com/.default"
	}
	return &AzureAD{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{scope},
	}
}

func (a *AzureAD) credential() (*azidentity.ClientSecretCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cred != nil {
		return a.cred, nil
	}
	cred, err := azidentity.NewClientSecretCredential(a.TenantID, a.ClientID, a.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("sourceauth: azure ad credential: %w", err)
	}
	a.cred = cred
	return cred, nil
}

func (a *AzureAD) Headers(ctx context.Context) (map[string]string, error) {
	cred, err := a.credential()
	if err != nil {
		return nil, err
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: a.Scopes})
	if err != nil {
		return nil, fmt.Errorf("sourceauth: azure ad token fetch: %w", err)
	}

	return map[string]string{"Authorization": "Bearer " + token.Token}, nil
}
