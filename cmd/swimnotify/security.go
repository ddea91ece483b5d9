package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
)

const (
	webhookSignatureHeader = "X-Webhook-Hmac"
	webhookTimestampHeader = "X-Webhook-Timestamp"
)

// verifySignature checks the WAHA HMAC-SHA512 signature over the raw body
// and returns the body. The request body is restored for later readers.
func verifySignature(r *http.Request, secretKey string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if os.Getenv("SWIMNOTIFY_ENV") == "production" {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	signature := r.Header.Get(webhookSignatureHeader)
	if signature == "" {
		return nil, fmt.Errorf("missing signature header: %s", webhookSignatureHeader)
	}
	if r.Header.Get(webhookTimestampHeader) == "" {
		return nil, fmt.Errorf("missing %s header", webhookTimestampHeader)
	}

	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return nil, fmt.Errorf("signature mismatch")
	}
	return body, nil
}
