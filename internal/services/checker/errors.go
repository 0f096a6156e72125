package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

type checkErr struct {
	kind monitor.ErrorKind
	msg  string
}

func (e *checkErr) Error() string { return string(e.kind) + ": " + e.msg }

func failf(kind monitor.ErrorKind, format string, args ...any) *checkErr {
	return &checkErr{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func asCheckErr(err error) *checkErr {
	var ce *checkErr
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// classifyNetErr maps a transport error to the error kind reported for it.
func classifyNetErr(err error) *checkErr {
	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		netErr      net.Error
	)
	switch {
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr), errors.As(err, &alertErr):
		return failf(monitor.ErrTLSFailure, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return failf(monitor.ErrTimeout, "%v", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return failf(monitor.ErrTimeout, "%v", err)
	default:
		return failf(monitor.ErrConnectionFailure, "%v", err)
	}
}

const truncSuffix = "…(truncated)"

// truncate bounds s to max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max - len(truncSuffix)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncSuffix
}
