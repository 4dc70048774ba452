package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// cityRecord is the subset of a GeoLite2-City record we read.
type cityRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// MaxMindProvider implements Provider using a MaxMind GeoLite2 City database.
type MaxMindProvider struct {
	reader *maxminddb.Reader
}

// NewMaxMindProvider opens the database at dbPath.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

// Lookup returns geo information for an IP address.
func (m *MaxMindProvider) Lookup(ip string) (*Info, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}

	var record cityRecord
	if err := m.reader.Lookup(parsed, &record); err != nil {
		return nil, err
	}

	info := &Info{
		CountryCode: record.Country.ISOCode,
		Country:     localized(record.Country.Names),
		City:        localized(record.City.Names),
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].ISOCode
	}
	return info, nil
}

// Close closes the GeoIP database.
func (m *MaxMindProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

func localized(names map[string]string) string {
	if v := names["pt-BR"]; v != "" {
		return v
	}
	return names["en"]
}
