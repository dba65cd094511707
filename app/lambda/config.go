package lambda

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidProxySource = errors.New("invalid proxy source")

// ProxySource is the kind of event that invokes the function.
type ProxySource string

const (
	ProxySourceApiGatewayV1 ProxySource = "API_GW_V1"
	ProxySourceApiGatewayV2 ProxySource = "API_GW_V2"
	ProxySourceAlb          ProxySource = "ALB"
)

func (p ProxySource) String() string {
	return string(p)
}

// ParseProxySource parses s case-insensitively.
func ParseProxySource(s string) (ProxySource, error) {
	source := ProxySource(strings.ToUpper(strings.TrimSpace(s)))

	if _, ok := proxies[source]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidProxySource, s)
	}

	return source, nil
}

type Config struct {
	// ProxySource is the kind of event that invokes the function
	ProxySource ProxySource `conf:"lambda_proxy_source"`
}
