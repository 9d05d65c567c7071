// Package policy guards delegation token endpoints against SSRF-prone
// registrations. Rules live in an embedded rego module so operators can
// audit them as policy rather than code.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"machineid/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const endpointQuery = "data.machineid.endpoint.deny"

const endpointModule = `package machineid.endpoint

import rego.v1

blocked_cidrs := {
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

deny contains msg if {
	input.scheme != "https"
	msg := "token_endpoint must use https"
}

deny contains msg if {
	input.has_user_info
	msg := "token_endpoint must not embed credentials"
}

deny contains msg if {
	lower(input.hostname) == "localhost"
	msg := "token_endpoint must not target localhost"
}

deny contains msg if {
	input.ip != ""
	some cidr in blocked_cidrs
	net.cidr_contains(cidr, input.ip)
	msg := sprintf("token_endpoint address is in blocked range %s", [cidr])
}
`

type endpointInput struct {
	Scheme      string `json:"scheme"`
	Hostname    string `json:"hostname"`
	IP          string `json:"ip"`
	HasUserInfo bool   `json:"has_user_info"`
}

type EndpointGuard struct {
	query rego.PreparedEvalQuery
}

func NewEndpointGuard(ctx context.Context) (*EndpointGuard, error) {
	prepared, err := rego.New(
		rego.Query(endpointQuery),
		rego.Module("endpoint.rego", endpointModule),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare endpoint policy: %w", err)
	}
	return &EndpointGuard{query: prepared}, nil
}

// Check evaluates the registered endpoint URL against the policy and
// returns ErrEndpointRejected with every violation when it fails.
func (g *EndpointGuard) Check(ctx context.Context, endpoint string) error {
	if g == nil {
		return errors.New("endpoint guard is nil")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: not a valid absolute URL", domain.ErrEndpointRejected)
	}
	input := endpointInput{
		Scheme:      strings.ToLower(parsed.Scheme),
		Hostname:    parsed.Hostname(),
		HasUserInfo: parsed.User != nil,
	}
	if ip := net.ParseIP(parsed.Hostname()); ip != nil {
		input.IP = ip.String()
	}

	results, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate endpoint policy: %w", err)
	}
	violations := decodeViolations(results)
	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrEndpointRejected, strings.Join(violations, "; "))
}

func decodeViolations(results rego.ResultSet) []string {
	var out []string
	for _, result := range results {
		for _, expr := range result.Expressions {
			payload, err := json.Marshal(expr.Value)
			if err != nil {
				continue
			}
			var messages []string
			if err := json.Unmarshal(payload, &messages); err != nil {
				continue
			}
			out = append(out, messages...)
		}
	}
	sort.Strings(out)
	return out
}
