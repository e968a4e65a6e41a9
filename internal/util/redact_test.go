package util

import "testing"

func TestRedact(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                     "",
		"short":                                "...",
		"12345678":                             "...",
		"device-api-key-0042":                  "...0042",
		"  padded-admin-key  ":                 "...-key",
		"0196f1c2-7a3b-7c00-9d1e-5f2a3b4c5d6e": "...5d6e",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Fatalf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: ""},
		{name: "no credentials", raw: "deviceId=abc123&store=S1", want: "deviceId=abc123&store=S1"},
		{name: "customer pay link", raw: "terminalId=STORE01-0001&sessionId=0196f1c2-7a3b-7c00-9d1e-5f2a3b4c5d6e", want: "terminalId=STORE01-0001&sessionId=...5d6e"},
		{name: "api key", raw: "x-api-key=device-api-key-0042&deviceId=abc", want: "x-api-key=...0042&deviceId=abc"},
		{name: "login key", raw: "key=operator-secret", want: "key=...cret"},
		{name: "encoded name", raw: "x%2Dapi%2Dkey=device-api-key-0042", want: "x%2Dapi%2Dkey=...0042"},
		{name: "case insensitive", raw: "SessionID=abcdefghijkl", want: "SessionID=...ijkl"},
		{name: "token suffix", raw: "resetToken=abcdefghijkl&limit=5", want: "resetToken=...ijkl&limit=5"},
		{name: "bare flag", raw: "key&json=1", want: "key&json=1"},
		{name: "encoded value", raw: "key=a%20long%20operator%20key", want: "key=...+key"},
	}
	for _, tc := range cases {
		if got := RedactQuery(tc.raw); got != tc.want {
			t.Fatalf("%s: RedactQuery(%q) = %q, want %q", tc.name, tc.raw, got, tc.want)
		}
	}
}

func TestIsCredentialParam(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"x-api-key", "apiKey", "key", "sessionId", "session_secret", "access_token"} {
		if !IsCredentialParam(name) {
			t.Fatalf("expected %q to be a credential", name)
		}
	}
	for _, name := range []string{"terminalId", "deviceId", "store", "keyword", "limit"} {
		if IsCredentialParam(name) {
			t.Fatalf("expected %q not to be a credential", name)
		}
	}
}
