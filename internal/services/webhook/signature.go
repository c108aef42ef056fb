package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verify checks a "t=<timestamp>,v1=<hex>" signature header against
// HMAC-SHA256(secret, timestamp || rawBody). It fails closed: a malformed
// header, a missing part or an empty secret all return false. Several v1
// entries may be present during secret rotation; any match is accepted.
func Verify(rawBody []byte, signatureHeader string, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}

	timestamp, signatures, ok := parseSignatureHeader(signatureHeader)
	if !ok {
		return false
	}

	expected := Sign(rawBody, timestamp, secret)

	matched := false
	for _, sig := range signatures {
		// Compare every candidate so timing does not depend on the position of
		// the matching entry.
		if hmac.Equal([]byte(expected), []byte(sig)) {
			matched = true
		}
	}

	return matched
}

// Sign returns the lowercase hex HMAC-SHA256 of timestamp || rawBody.
func Sign(rawBody []byte, timestamp string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)

	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds the header value the gateway would send.
func SignatureHeader(rawBody []byte, timestamp string, secret []byte) string {
	return "t=" + timestamp + ",v1=" + Sign(rawBody, timestamp, secret)
}

func parseSignatureHeader(header string) (string, []string, bool) {
	var (
		timestamp  string
		signatures []string
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || value == "" {
			continue
		}

		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return "", nil, false
	}

	return timestamp, signatures, true
}
