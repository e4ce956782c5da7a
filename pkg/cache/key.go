package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces every cache key in Redis. Clear and Stats only touch
// keys under this prefix.
const keyPrefix = "trafa"

// Key identifies a cached API response.
type Key struct {
	// Endpoint is the API endpoint path (e.g. "/data" or "/structure").
	Endpoint string

	// Params are the request's query parameters.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: trafa:endpoint:param1=val1:param2=val2
//
// Example:
//
//	trafa:data:lang=sv:query=t10016|ar:2020,2021
func (k Key) String() string {
	parts := []string{keyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Sorted params keep the key independent of construction order.
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params.Get(name)))
		}
	}

	return strings.Join(parts, ":")
}
