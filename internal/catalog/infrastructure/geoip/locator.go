// Package geoip maps client addresses to countries using a MaxMind database.
package geoip

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator is safe for concurrent use. A nil *Locator answers "" for every
// address, which lets the service run without a database file.
type Locator struct {
	log    *slog.Logger
	reader *geoip2.Reader
}

// Open loads the database at path. An empty path disables lookups.
func Open(log *slog.Logger, path string) (*Locator, error) {
	if path == "" {
		log.Info("geoip disabled, no database configured")
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &Locator{log: log, reader: reader}, nil
}

// Country returns the ISO code for addr, which may carry a port.
func (l *Locator) Country(addr string) string {
	if l == nil {
		return ""
	}
	ip := ParseIP(addr)
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return ""
	}
	record, err := l.reader.Country(ip)
	if err != nil {
		l.log.Debug("geoip lookup failed", "ip", ip.String(), "err", err)
		return ""
	}
	return record.Country.IsoCode
}

func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	return l.reader.Close()
}

// ParseIP accepts "1.2.3.4", "1.2.3.4:5678" and "[::1]:80".
func ParseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}
