// Package geo maps caller countries to credential-provider regions so
// browser sessions and egress locale line up with the requesting user.
package geo

import "strings"

// Regions supported by the credential provider.
var Regions = []string{"us", "uk", "de", "fr", "jp", "sg", "in", "au", "ca"}

// DefaultRegion is used when a country has no mapping.
const DefaultRegion = "us"

// countryToRegion maps ISO 3166-1 alpha-2 country codes to provider regions.
// Unmapped countries fall back to DefaultRegion.
var countryToRegion = map[string]string{
	// North America
	"US": "us", "CA": "ca", "MX": "us",
	// UK and Ireland
	"GB": "uk", "IE": "uk",
	// Central Europe
	"DE": "de", "AT": "de", "CH": "de", "PL": "de", "CZ": "de", "HU": "de",
	// France and neighbours
	"FR": "fr", "BE": "fr", "LU": "fr", "MC": "fr",
	// East Asia
	"JP": "jp", "KR": "jp", "TW": "jp",
	// Southeast Asia
	"SG": "sg", "MY": "sg", "TH": "sg", "VN": "sg", "PH": "sg", "ID": "sg",
	"CN": "sg", "HK": "sg", "MO": "sg",
	// South Asia
	"IN": "in", "BD": "in", "PK": "in", "LK": "in", "NP": "in",
	// Oceania
	"AU": "au", "NZ": "au", "FJ": "au",
	// Eastern Europe
	"RU": "de", "UA": "de", "BY": "de",
	// Nordics
	"SE": "uk", "NO": "uk", "DK": "uk", "FI": "uk",
	// Southern Europe
	"IT": "fr", "ES": "fr", "PT": "fr", "GR": "de",
	// Middle East
	"AE": "sg", "SA": "sg", "IL": "uk", "TR": "de",
	// Africa
	"ZA": "uk", "EG": "uk", "NG": "uk", "KE": "uk",
	"MA": "fr", "DZ": "fr", "TN": "fr",
	// South America
	"BR": "us", "AR": "us", "CL": "us", "CO": "us", "PE": "us", "VE": "us",
}

// RegionForCountry returns the provider region for an ISO country code.
func RegionForCountry(countryCode string) string {
	if region, ok := countryToRegion[strings.ToUpper(strings.TrimSpace(countryCode))]; ok {
		return region
	}
	return DefaultRegion
}

// IsSupported reports whether region is a known provider region.
func IsSupported(region string) bool {
	for _, r := range Regions {
		if r == region {
			return true
		}
	}
	return false
}
