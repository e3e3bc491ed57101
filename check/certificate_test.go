package check

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateCheck(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	// httptest certificates are issued for example.com and 127.0.0.1
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		c := NewCertificateCheck(net.JoinHostPort("127.0.0.1", port))
		c.Config = &tls.Config{RootCAs: pool}

		status, message := c.Run(context.Background())
		assert.Equal(t, Up, status, message)
		assert.Contains(t, message, "expires")
	})

	t.Run("expired", func(t *testing.T) {
		c := NewCertificateCheck(net.JoinHostPort("127.0.0.1", port))
		c.Config = &tls.Config{RootCAs: pool}
		c.Now = func() time.Time { return srv.Certificate().NotAfter.Add(time.Hour) }

		status, message := c.Run(context.Background())
		assert.Equal(t, Down, status)
		assert.Contains(t, message, "expired")
	})

	t.Run("untrusted", func(t *testing.T) {
		c := NewCertificateCheck(net.JoinHostPort("127.0.0.1", port))

		status, message := c.Run(context.Background())
		assert.Equal(t, Down, status)
		assert.NotEmpty(t, message)
	})

	t.Run("default_port", func(t *testing.T) {
		c := NewCertificateCheck("example.org")
		assert.Equal(t, "example.org:443", c.Address)
	})
}
