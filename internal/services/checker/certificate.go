package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs/retry"
)

func (e *Executor) checkCertificate(ctx context.Context, t *monitor.CertificateTarget) (monitor.Status, string, error) {
	var roots *x509.CertPool
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return monitor.StatusFail, "", retry.Permanent(failf(monitor.ErrTLSFailure, "read ca file: %v", err))
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return monitor.StatusFail, "", retry.Permanent(failf(monitor.ErrTLSFailure, "no certificates in %s", t.CAFile))
		}
	}

	// Verification happens below so that expiry is reported even for chains
	// the handshake would reject.
	d := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         t.ServerName,
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(t.Host, strconv.Itoa(t.Port)))
	if err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return monitor.StatusFail, "", failf(monitor.ErrTLSFailure, "server presented no certificate")
	}
	now := e.clock.Now()
	leaf := state.PeerCertificates[0]
	inter := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		inter.AddCert(c)
	}
	_, verr := leaf.Verify(x509.VerifyOptions{
		DNSName:       t.ServerName,
		Roots:         roots,
		Intermediates: inter,
		CurrentTime:   now,
	})
	return evaluateCertificate(now, leaf, verr, t.WarnBefore)
}

// evaluateCertificate grades a leaf certificate: Fail when it is expired, not
// yet valid or its chain did not verify, Warn when it expires within warn.
func evaluateCertificate(now time.Time, leaf *x509.Certificate, verifyErr error, warn time.Duration) (monitor.Status, string, error) {
	if !now.Before(leaf.NotAfter) {
		return monitor.StatusFail, "", failf(monitor.ErrTLSFailure, "certificate %q expired at %s", leaf.Subject.CommonName, leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	if now.Before(leaf.NotBefore) {
		return monitor.StatusFail, "", failf(monitor.ErrTLSFailure, "certificate %q not valid before %s", leaf.Subject.CommonName, leaf.NotBefore.UTC().Format(time.RFC3339))
	}
	if verifyErr != nil {
		return monitor.StatusFail, "", failf(monitor.ErrTLSFailure, "chain invalid: %v", verifyErr)
	}
	left := leaf.NotAfter.Sub(now)
	days := int(math.Floor(left.Hours() / 24))
	if left <= warn {
		return monitor.StatusWarn, fmt.Sprintf("certificate expires in %d day(s) at %s", days, leaf.NotAfter.UTC().Format(time.RFC3339)), nil
	}
	return monitor.StatusOK, fmt.Sprintf("certificate valid for %d more day(s)", days), nil
}
