package registry

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

const (
	defaultCertPort     = 443
	defaultWarnDays     = 7
	defaultPostgresProb = "SELECT 1"
)

var defaultAccepted = []monitor.StatusRange{{Min: 200, Max: 399}}

func decodeTarget(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// buildTarget decodes the type-specific target of e into def. It returns every
// problem it finds rather than stopping at the first one.
func buildTarget(e Entry, def *monitor.Definition) []error {
	if e.Target == nil {
		return []error{fieldErr(e.ID, "target", fmt.Errorf("%w: missing", ErrBadTarget))}
	}
	bad := func(format string, args ...any) error {
		return fieldErr(e.ID, "target", fmt.Errorf("%w: "+format, append([]any{ErrBadTarget}, args...)...))
	}

	var errs []error
	switch def.Type {
	case monitor.TypeHTTP:
		var c httpTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		t := &monitor.HTTPTarget{
			URL:       strings.TrimSpace(c.URL),
			Method:    strings.ToUpper(strings.TrimSpace(c.Method)),
			Headers:   c.Headers,
			VerifyTLS: c.VerifyTLS == nil || *c.VerifyTLS,
		}
		if t.Method == "" {
			t.Method = http.MethodGet
		}
		if u, err := url.Parse(t.URL); t.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, bad("url must be an absolute http(s) url, got %q", c.URL))
		}
		if len(c.AcceptedStatus) == 0 {
			t.AcceptedStatus = defaultAccepted
		}
		for _, s := range c.AcceptedStatus {
			r, err := parseStatusRange(s)
			if err != nil {
				errs = append(errs, bad("acceptedStatus: %v", err))
				continue
			}
			t.AcceptedStatus = append(t.AcceptedStatus, r)
		}
		if c.BodyPattern != "" {
			re, err := regexp.Compile(c.BodyPattern)
			if err != nil {
				errs = append(errs, bad("bodyPattern: %v", err))
			}
			t.BodyPattern = re
		}
		if t.BodyPattern != nil && t.Method == http.MethodHead {
			errs = append(errs, bad("bodyPattern cannot be used with HEAD"))
		}
		def.HTTP = t

	case monitor.TypeTCP:
		var c tcpTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		if strings.TrimSpace(c.Host) == "" {
			errs = append(errs, bad("host is required"))
		}
		if c.Port < 1 || c.Port > 65535 {
			errs = append(errs, bad("port must be 1..65535, got %d", c.Port))
		}
		def.TCP = &monitor.TCPTarget{Host: strings.TrimSpace(c.Host), Port: c.Port}

	case monitor.TypeCommand:
		var c commandTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		if strings.TrimSpace(c.Command) == "" {
			errs = append(errs, bad("command is required"))
		}
		codes := c.AcceptedExitCodes
		if len(codes) == 0 {
			codes = []int{0}
		}
		def.Command = &monitor.CommandTarget{Command: strings.TrimSpace(c.Command), Args: c.Args, AcceptedExitCodes: codes}

	case monitor.TypeCertificate:
		var c certificateTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		if strings.TrimSpace(c.Host) == "" {
			errs = append(errs, bad("host is required"))
		}
		if c.Port == 0 {
			c.Port = defaultCertPort
		}
		if c.Port < 1 || c.Port > 65535 {
			errs = append(errs, bad("port must be 1..65535, got %d", c.Port))
		}
		warn := defaultWarnDays
		if c.WarnDays != nil {
			warn = *c.WarnDays
		}
		if warn < 0 {
			errs = append(errs, bad("warnDays must not be negative"))
		}
		sn := c.ServerName
		if sn == "" {
			sn = strings.TrimSpace(c.Host)
		}
		def.Certificate = &monitor.CertificateTarget{
			Host:       strings.TrimSpace(c.Host),
			Port:       c.Port,
			ServerName: sn,
			WarnBefore: time.Duration(warn) * 24 * time.Hour,
			CAFile:     c.CAFile,
		}

	case monitor.TypeProcess:
		var c processTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		t := &monitor.ProcessTarget{PID: c.PID, PIDFile: c.PIDFile}
		set := 0
		if c.Name != "" {
			set++
			re, err := regexp.Compile(c.Name)
			if err != nil {
				errs = append(errs, bad("name: %v", err))
			}
			t.Name = re
		}
		if c.PID != 0 {
			set++
			if c.PID < 0 {
				errs = append(errs, bad("pid must be positive"))
			}
		}
		if c.PIDFile != "" {
			set++
		}
		if set != 1 {
			errs = append(errs, bad("exactly one of name, pid, pidFile is required"))
		}
		def.Process = t

	case monitor.TypeLoadAvg:
		var c loadAvgTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		if c.Max1 == nil && c.Max5 == nil && c.Max15 == nil {
			errs = append(errs, bad("at least one of max1, max5, max15 is required"))
		}
		def.LoadAvg = &monitor.LoadAvgTarget{Max1: c.Max1, Max5: c.Max5, Max15: c.Max15}

	case monitor.TypePostgres:
		var c postgresTargetCfg
		if err := decodeTarget(e.Target, &c); err != nil {
			return []error{bad("%v", err)}
		}
		if strings.TrimSpace(c.DSN) == "" {
			errs = append(errs, bad("dsn is required"))
		}
		q := strings.TrimSpace(c.Query)
		if q == "" {
			q = defaultPostgresProb
		}
		def.Postgres = &monitor.PostgresTarget{DSN: c.DSN, Query: q}
	}
	return errs
}

// parseStatusRange accepts 200, "200", "200-299" or "2xx".
func parseStatusRange(v any) (monitor.StatusRange, error) {
	s := strings.TrimSpace(strings.ToLower(fmt.Sprint(v)))
	if len(s) == 3 && strings.HasSuffix(s, "xx") {
		d, err := strconv.Atoi(s[:1])
		if err != nil || d < 1 || d > 5 {
			return monitor.StatusRange{}, fmt.Errorf("bad status class %q", s)
		}
		return monitor.StatusRange{Min: d * 100, Max: d*100 + 99}, nil
	}
	lo, hi, isRange := strings.Cut(s, "-")
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return monitor.StatusRange{}, fmt.Errorf("bad status %q", s)
	}
	max := min
	if isRange {
		if max, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return monitor.StatusRange{}, fmt.Errorf("bad status %q", s)
		}
	}
	if min < 100 || max > 599 || min > max {
		return monitor.StatusRange{}, fmt.Errorf("status range %q out of 100..599", s)
	}
	return monitor.StatusRange{Min: min, Max: max}, nil
}
