package check

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// CertificateCheck verifies the TLS certificate chain served by a host and
// reports when the earliest expiry falls.
type CertificateCheck struct {
	Address string
	Config  *tls.Config
	Timeout time.Duration
	Now     func() time.Time
}

func NewCertificateCheck(hostname string) *CertificateCheck {
	address := hostname
	if _, _, err := net.SplitHostPort(hostname); err != nil {
		address = net.JoinHostPort(hostname, "443")
	}

	return &CertificateCheck{
		Address: address,
		Timeout: time.Second,
		Now:     time.Now,
	}
}

func (c *CertificateCheck) Run(ctx context.Context) (Status, string) {
	notAfter, issuer, err := c.inspect(ctx)
	if err != nil {
		return Down, err.Error()
	}

	if !c.Now().Before(notAfter) {
		return Down, fmt.Sprintf("certificate expired %s (%s)", humanize.Time(notAfter), notAfter.Format(time.RFC1123))
	}

	return Up, fmt.Sprintf("issued by %s, expires %s (%s)", issuer, humanize.Time(notAfter), notAfter.Format(time.RFC1123))
}

func (c *CertificateCheck) inspect(ctx context.Context) (time.Time, string, error) {
	hostname, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		return time.Time{}, "", err
	}

	cfg := &tls.Config{ServerName: hostname}
	if c.Config != nil {
		cfg = c.Config.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = hostname
		}
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.Timeout},
		Config:    cfg,
	}

	raw, err := dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return time.Time{}, "", err
	}
	conn := raw.(*tls.Conn)
	defer conn.Close()

	if err := conn.VerifyHostname(hostname); err != nil {
		return time.Time{}, "", err
	}

	peerCertificates := conn.ConnectionState().PeerCertificates
	if len(peerCertificates) == 0 {
		return time.Time{}, "", errors.New("no peer certificates presented")
	}

	notAfter := peerCertificates[0].NotAfter
	issuer := issuerName(peerCertificates[0])

	for _, cert := range peerCertificates {
		logrus.Debugf("Hostname %s, notAfter %s, issuer %s, subject %s", hostname, cert.NotAfter, cert.Issuer, cert.Subject)

		if cert.NotAfter.Before(notAfter) {
			notAfter = cert.NotAfter
		}
	}

	return notAfter, issuer, nil
}

func issuerName(cert *x509.Certificate) string {
	if len(cert.Issuer.Organization) > 0 {
		return cert.Issuer.Organization[0]
	}
	return cert.Issuer.CommonName
}
