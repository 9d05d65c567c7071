// Package exchange performs the outbound RFC 8693 token-exchange call
// to a tenant-registered callback.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"machineid/internal/domain"

	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	Timeout  time.Duration
	ProxyURL string
}

type Client struct {
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse exchange proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			// Redirect targets are never followed: the call must reach
			// exactly the registered token_endpoint.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Exchange posts the delegated JWT-SVID to the tenant callback and
// returns the callback's token response verbatim. Transport failures
// get a single retry with backoff; HTTP-level rejection does not.
func (c *Client) Exchange(ctx context.Context, delegation domain.TokenDelegationConfig, subjectToken string) (domain.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", domain.GrantTypeTokenExchange)
	form.Set("subject_token", subjectToken)
	form.Set("subject_token_type", domain.TokenTypeJWT)
	for _, audience := range delegation.SubjectTokenAudiences {
		form.Add("audience", audience)
	}
	body := form.Encode()

	var out domain.TokenResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, delegation.TokenEndpoint, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		if delegation.AuthMethod == domain.AuthMethodClientSecretBasic {
			req.SetBasicAuth(delegation.ClientID, delegation.ClientSecret)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, ctx.Err()))
			}
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(fmt.Errorf("%w: status %d", domain.ErrUpstreamRejected, resp.StatusCode))
		}

		decoded, err := decodeTokenResponse(resp.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		out = decoded
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return domain.TokenResponse{}, err
	}
	return out, nil
}

func decodeTokenResponse(body io.Reader) (domain.TokenResponse, error) {
	var resp domain.TokenResponse
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&resp); err != nil {
		return domain.TokenResponse{}, fmt.Errorf("%w: %v", domain.ErrMalformedUpstreamResponse, err)
	}
	if resp.AccessToken == "" || resp.IssuedTokenType == "" || resp.TokenType == "" || resp.ExpiresIn <= 0 {
		return domain.TokenResponse{}, fmt.Errorf("%w: missing required fields", domain.ErrMalformedUpstreamResponse)
	}
	return resp, nil
}
