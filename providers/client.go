package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// defaultHTTPTimeout bounds every provider round trip when the caller
// supplies no HTTP client of their own.
const defaultHTTPTimeout = 30 * time.Second

// Endpoints declares the provider URLs the generic client operates
// against. RefreshURL and RevokeURL are optional; leaving one empty makes
// the corresponding operation unsupported.
type Endpoints struct {
	AuthURL    string
	TokenURL   string
	RefreshURL string
	RevokeURL  string
}

// Config holds the credentials and endpoints of one provider.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes are the default scopes requested when the caller passes none.
	Scopes []string

	Endpoints Endpoints

	// ExtraAuthParams are provider-specific query parameters appended to
	// every authorization URL (e.g. access_type=offline).
	ExtraAuthParams map[string]string

	// HTTPClient overrides the default client for all provider calls.
	HTTPClient *http.Client
}

// Client is the generic authorization-code client. It implements every
// Provider method except ResolveIdentity; concrete providers embed it
// and add their identity lookup.
type Client struct {
	cfg        Config
	oauth      oauth2.Config
	httpClient *http.Client
}

// NewClient validates the configuration and constructs a generic client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.Endpoints.AuthURL == "" || cfg.Endpoints.TokenURL == "" {
		return nil, fmt.Errorf("authorize and token endpoints are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.Endpoints.AuthURL,
				TokenURL: cfg.Endpoints.TokenURL,
			},
		},
		httpClient: httpClient,
	}, nil
}

// Name returns the configured provider name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// AuthorizationURL constructs the authorize URL: response_type=code,
// client_id, redirect_uri, space-joined scope, state, plus any configured
// extra parameters. Extra parameters are appended in sorted order so the
// construction is deterministic.
func (c *Client) AuthorizationURL(state string, scopes []string) string {
	conf := c.oauth
	if len(scopes) > 0 {
		conf.Scopes = scopes
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(c.cfg.ExtraAuthParams))
	keys := make([]string, 0, len(c.cfg.ExtraAuthParams))
	for k := range c.cfg.ExtraAuthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(k, c.cfg.ExtraAuthParams[k]))
	}

	return conf.AuthCodeURL(state, opts...)
}

// ExchangeCode POSTs an authorization_code grant to the token endpoint.
// The code is URL-decoded first, since some providers deliver it escaped.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	if decoded, err := url.QueryUnescape(code); err == nil {
		code = decoded
	}

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	return tok, nil
}

// tokenResponse is the provider's JSON token payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken POSTs a refresh_token grant to the declared refresh
// endpoint. The refresh endpoint is kept separate from the exchange
// endpoint because providers may differ here.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if c.cfg.Endpoints.RefreshURL == "" {
		return nil, ErrRefreshNotSupported
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	resp, err := c.postForm(ctx, c.cfg.Endpoints.RefreshURL, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrRefreshFailed, err)
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// RevokeToken POSTs the token to the declared revocation endpoint.
// tokenTypeHint is included only when supplied.
func (c *Client) RevokeToken(ctx context.Context, token, tokenTypeHint string) error {
	if c.cfg.Endpoints.RevokeURL == "" {
		return ErrRevokeNotSupported
	}

	form := url.Values{"token": {token}}
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}

	resp, err := c.postForm(ctx, c.cfg.Endpoints.RevokeURL, form)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevokeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: provider returned status %d", ErrRevokeFailed, resp.StatusCode)
	}
	return nil
}

// HTTPClient exposes the configured client for provider-specific calls.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}
