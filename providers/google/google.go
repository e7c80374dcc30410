// Package google implements the Google identity provider on top of the
// generic authorization-code client.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"

	"github.com/keystonehq/authcore/providers"
)

const (
	revokeEndpoint = "https://accounts.google.com/o/oauth2/revoke"
	peopleEndpoint = "https://people.googleapis.com/v1/people/me"
)

// defaultScopes request the profile and email of the authenticating user.
var defaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Config holds Google OAuth2 credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// Provider implements providers.Provider for Google. Google declares no
// refresh endpoint here, so RefreshToken reports the operation as
// unsupported.
type Provider struct {
	*providers.Client

	// peopleURL is the identity-lookup endpoint; overridable in tests.
	peopleURL string
}

// New creates a Google provider.
func New(cfg Config) (*Provider, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	client, err := providers.NewClient(providers.Config{
		Name:         "google",
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoints: providers.Endpoints{
			AuthURL:   google.Endpoint.AuthURL,
			TokenURL:  google.Endpoint.TokenURL,
			RevokeURL: revokeEndpoint,
		},
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{Client: client, peopleURL: peopleEndpoint}, nil
}

// peopleResponse is the subset of the People API response we consume.
type peopleResponse struct {
	ResourceName   string `json:"resourceName"`
	EmailAddresses []struct {
		Value    string `json:"value"`
		Metadata struct {
			Primary bool `json:"primary"`
		} `json:"metadata"`
	} `json:"emailAddresses"`
}

// ResolveIdentity resolves the Google user ID and primary email for an
// access token via the People API.
func (p *Provider) ResolveIdentity(ctx context.Context, accessToken string) (*providers.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.peopleURL+"?personFields=emailAddresses", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrIdentityLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.HTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrIdentityLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d",
			providers.ErrIdentityLookupFailed, resp.StatusCode)
	}

	var pr peopleResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", providers.ErrIdentityLookupFailed, err)
	}

	email := ""
	for _, e := range pr.EmailAddresses {
		if e.Metadata.Primary {
			email = e.Value
			break
		}
	}
	if pr.ResourceName == "" || email == "" {
		return nil, fmt.Errorf("%w: response without resource name or primary email",
			providers.ErrIdentityLookupFailed)
	}

	return &providers.Identity{ProviderUserID: pr.ResourceName, Email: email}, nil
}
