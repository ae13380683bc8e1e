package settlement

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	cdpjwt "github.com/coinbase/cdp-sdk/go/auth"
)

const sdkLanguage = "go"

// CDPAuthProvider signs facilitator requests with a Coinbase Developer
// Platform JWT, for deployments that settle through a CDP-hosted facilitator
// instead of a self-hosted one.
type CDPAuthProvider struct {
	apiKeyID     string
	apiKeySecret string
	requestHost  string
	pathPrefix   string
}

// NewCDPAuthProvider builds a provider for the facilitator at baseURL using
// the operator's CDP API key pair.
func NewCDPAuthProvider(apiKeyID, apiKeySecret, baseURL string) *CDPAuthProvider {
	host, prefix := splitBaseURL(baseURL)
	return &CDPAuthProvider{
		apiKeyID:     apiKeyID,
		apiKeySecret: apiKeySecret,
		requestHost:  host,
		pathPrefix:   prefix,
	}
}

// AuthHeaders implements AuthProvider.
func (p *CDPAuthProvider) AuthHeaders(ctx context.Context, method, path string) (map[string]string, error) {
	headers := map[string]string{
		"Correlation-Context": correlationHeader(),
	}
	if p.apiKeyID == "" || p.apiKeySecret == "" {
		return headers, nil
	}
	// the signed uri must name the endpoint as called, base path included;
	// CDP-hosted facilitators live under /platform/v2/x402
	token, err := cdpjwt.GenerateJWT(cdpjwt.JwtOptions{
		KeyID:         p.apiKeyID,
		KeySecret:     p.apiKeySecret,
		RequestMethod: method,
		RequestHost:   p.requestHost,
		RequestPath:   p.pathPrefix + path,
	})
	if err != nil {
		return nil, fmt.Errorf("generate JWT: %w", err)
	}
	headers["Authorization"] = "Bearer " + token
	return headers, nil
}

func correlationHeader() string {
	data := map[string]string{
		"sdk_language": sdkLanguage,
		"source":       "porus-gateway",
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, url.QueryEscape(data[key])))
	}
	return strings.Join(parts, ",")
}

func splitBaseURL(baseURL string) (host, pathPrefix string) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return strings.TrimPrefix(baseURL, "https://"), ""
	}
	return parsed.Host, strings.TrimSuffix(parsed.Path, "/")
}
