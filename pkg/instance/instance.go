package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the identifier attached to every log line.
const EnvInstanceID = "STOREFRONT_INSTANCE_ID"

// ID returns the agent instance identifier: the override when set, then the
// hostname, then "storefront-0".
func ID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "storefront-0"
}
