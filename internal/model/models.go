package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// LocaleNames holds continent and country names in a single locale.
type LocaleNames struct {
	ContinentName string `json:"continent_name"`
	CountryName   string `json:"country_name"`
}

// LocationRecord is a geoname aggregated across all processed language files.
// The flat name fields hold the names of the first language that produced it.
type LocationRecord struct {
	LocationID     int64
	ContinentCode  string
	ContinentName  string
	CountryISOCode string
	CountryName    string
	Locales        map[string]LocaleNames
}

// Row serializes the record into its persisted shape.
func (r *LocationRecord) Row() (LocationRow, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Locales); err != nil {
		return LocationRow{}, err
	}

	return LocationRow{
		LocationID:     r.LocationID,
		ContinentCode:  r.ContinentCode,
		ContinentName:  r.ContinentName,
		CountryISOCode: r.CountryISOCode,
		CountryName:    r.CountryName,
		LocalesJSON:    string(bytes.TrimRight(buf.Bytes(), "\n")),
	}, nil
}

// LocationRow is a row of the locations relation.
type LocationRow struct {
	LocationID     int64  `db:"location_id" json:"location_id"`
	ContinentCode  string `db:"continent_code" json:"continent_code"`
	ContinentName  string `db:"continent_name" json:"continent_name"`
	CountryISOCode string `db:"country_iso_code" json:"country_iso_code"`
	CountryName    string `db:"country_name" json:"country_name"`
	LocalesJSON    string `db:"locales_json" json:"locales_json"`
}

// Names returns the names for locale. An empty locale selects the primary
// columns; a locale missing from locales_json falls back to them as well.
func (r *LocationRow) Names(locale string) LocaleNames {
	primary := LocaleNames{
		ContinentName: r.ContinentName,
		CountryName:   r.CountryName,
	}
	if locale == "" {
		return primary
	}

	var locales map[string]LocaleNames
	if err := json.Unmarshal([]byte(r.LocalesJSON), &locales); err != nil {
		return primary
	}

	if names, ok := locales[locale]; ok {
		return names
	}

	return primary
}

// RangeRecord is an inclusive IPv4 range assigned to a location.
type RangeRecord struct {
	IPStart    uint64 `db:"ip_start"`
	IPEnd      uint64 `db:"ip_end"`
	LocationID int64  `db:"location_id"`
}

// Size is the coverage contribution of the range.
func (r RangeRecord) Size() uint64 {
	return r.IPEnd - r.IPStart
}

type RunStats struct {
	Locations    int
	Ranges       int64
	Coverage     uint64
	Elapsed      time.Duration
	PeakHeap     uint64
	LocationRows int
	FilteredRows int
	BlockRows    int
	Unmatched    int
	BadCIDR      int
	Malformed    int
}
