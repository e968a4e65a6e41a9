// Package util holds the log redaction helpers used by the request logger.
package util

import (
	"net/url"
	"strings"
)

// redactedKeep is how many trailing characters of a credential stay visible.
const redactedKeep = 4

// credentialParams are the query keys, lower-cased, that carry broker
// credentials or approval handles: the device API key, the operator login key
// and the session id carried by customer-pay links.
var credentialParams = map[string]struct{}{
	"x-api-key": {},
	"apikey":    {},
	"api_key":   {},
	"key":       {},
	"adminkey":  {},
	"sessionid": {},
}

// Redact hides a credential for logging, keeping its last few characters so
// two log lines can still be matched up. Short values are hidden entirely.
func Redact(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 2*redactedKeep {
		return "..."
	}
	return "..." + value[len(value)-redactedKeep:]
}

// RedactQuery returns raw with every credential value passed through Redact.
// Other pairs, their order and their encoding are left as they were.
func RedactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || !IsCredentialParam(name) {
			continue
		}
		if decoded, errUnescape := url.QueryUnescape(value); errUnescape == nil {
			value = decoded
		}
		pairs[i] = name + "=" + url.QueryEscape(Redact(value))
	}
	return strings.Join(pairs, "&")
}

// IsCredentialParam reports whether a query key names a credential. Anything
// mentioning a token or a secret counts as well.
func IsCredentialParam(name string) bool {
	if decoded, errUnescape := url.QueryUnescape(name); errUnescape == nil {
		name = decoded
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := credentialParams[name]; ok {
		return true
	}
	return strings.Contains(name, "token") || strings.Contains(name, "secret")
}
