// Package signature signs ingestion requests with a shared key and verifies
// them on the receiving side.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	TimestampHeader = "X-Healthguard-Request-Timestamp"
	SignatureHeader = "X-Healthguard-Signature"
)

// MaxSkew bounds how old a signed request may be before it is rejected.
var MaxSkew = 5 * time.Minute

// Sign sets the timestamp and signature headers for body on req.
func Sign(req *http.Request, body []byte, signingKey string, now time.Time) {
	timestamp := strconv.FormatInt(now.Unix(), 10)

	req.Header.Set(TimestampHeader, timestamp)
	req.Header.Set(SignatureHeader, "v0="+requestHmacHash(body, timestamp, signingKey))
}

// Verify rejects requests whose signature does not match the body. Bodies over
// maxBodySize bytes are rejected with 413 before the signature is computed.
func Verify(signingKey string, maxBodySize int64) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timestamp := r.Header.Get(TimestampHeader)

			if !fresh(timestamp, time.Now()) {
				logrus.Warnf("Stale or missing request timestamp %q", timestamp)

				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logrus.Warnf("Request body exceeds %d bytes", tooLarge.Limit)

				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			if err != nil {
				logrus.Errorf("Could not read request body: %s", err)

				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			expected := "v0=" + requestHmacHash(b, timestamp, signingKey)

			if !hmac.Equal([]byte(r.Header.Get(SignatureHeader)), []byte(expected)) {
				logrus.Warn("Invalid request signature")

				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(b))

			next.ServeHTTP(w, r)
		})
	}
}

func fresh(timestamp string, now time.Time) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}

	return age <= MaxSkew
}

func requestHmacHash(payload []byte, timestamp string, signingKey string) string {
	hs := fmt.Sprintf("v0:%s:%s", timestamp, string(payload))

	hash := hmac.New(sha256.New, []byte(signingKey))
	hash.Write([]byte(hs))
	s := hash.Sum(nil)

	return hex.EncodeToString(s)
}
