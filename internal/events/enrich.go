package events

import (
	"log/slog"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownCountry is reported when an address cannot be located.
const UnknownCountry = "Unknown"

// CountryResolver looks up the country of an IP address. *geoip2.Reader
// satisfies it.
type CountryResolver interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// Profile is the analysis of a game-init payload together with the stats
// system bucket and the location of the client.
type Profile struct {
	Analysis
	System      string `json:"system"`
	CountryCode string `json:"countryCode"`
	CountryName string `json:"countryName"`
}

// Enricher builds device profiles from game-init payloads. The resolver is
// optional; without one every profile has an unknown country.
type Enricher struct {
	resolver  CountryResolver
	countries *gountries.Query
	upper     cases.Caser
	logger    *slog.Logger
}

func NewEnricher(resolver CountryResolver, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		resolver:  resolver,
		countries: gountries.New(),
		upper:     cases.Upper(language.AmericanEnglish),
		logger:    logger,
	}
}

// Profile analyzes the payload and resolves the country of its IP address.
func (e *Enricher) Profile(payload GameInitPayload) Profile {
	analysis := AnalyzeGameInitPayload(payload)
	profile := Profile{
		Analysis:    analysis,
		System:      SystemBucket(analysis.OperatingSystem),
		CountryCode: UnknownCountry,
		CountryName: UnknownCountry,
	}
	if payload == nil {
		return profile
	}

	code := e.countryCode(payload.Base().IPAddress)
	if code == "" {
		return profile
	}
	profile.CountryCode = code
	profile.CountryName = e.countryName(code)
	return profile
}

func (e *Enricher) countryCode(address string) string {
	if e.resolver == nil {
		return ""
	}
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return ""
	}

	record, err := e.resolver.Country(ip)
	if err != nil {
		e.logger.Debug("Country lookup failed", slog.String("ip", address), slog.Any("error", err))
		return ""
	}
	if record == nil || record.Country.IsoCode == "" {
		return ""
	}
	return e.upper.String(record.Country.IsoCode)
}

func (e *Enricher) countryName(code string) string {
	country, err := e.countries.FindCountryByAlpha(code)
	if err != nil {
		return code
	}
	return country.Name.Common
}
