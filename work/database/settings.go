package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"streamhub/work/config"
)

const adFilterKey = "ad_filter_enabled"

// GetAdFilterEnabled returns the persisted ad-filter preference, falling
// back to the supplied default when nothing has been stored yet.
func (db *DB) GetAdFilterEnabled(fallback bool) bool {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", adFilterKey).Scan(&value)
	if err != nil {
		return fallback
	}
	return value == "true"
}

// SetAdFilterEnabled persists the ad-filter preference.
func (db *DB) SetAdFilterEnabled(enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, adFilterKey, value)
	if err != nil {
		return fmt.Errorf("failed to persist ad filter preference: %w", err)
	}
	return nil
}

// LoadSites returns provider sites stored in the database. Rows here
// override the file configuration when present, letting operators add or
// disable providers without a restart.
func (db *DB) LoadSites() ([]config.SiteConfig, error) {
	rows, err := db.Query("SELECT key, name, api, enabled, headers FROM provider_sites")
	if err != nil {
		return nil, fmt.Errorf("failed to load provider sites: %w", err)
	}
	defer rows.Close()

	var sites []config.SiteConfig
	for rows.Next() {
		var site config.SiteConfig
		var enabled int
		var headers sql.NullString
		if err := rows.Scan(&site.Key, &site.Name, &site.API, &enabled, &headers); err != nil {
			continue
		}
		site.Enabled = enabled != 0
		if headers.Valid && headers.String != "" {
			json.Unmarshal([]byte(headers.String), &site.Headers)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// UpsertSite stores or updates one provider site row.
func (db *DB) UpsertSite(site config.SiteConfig) error {
	var headers []byte
	if len(site.Headers) > 0 {
		headers, _ = json.Marshal(site.Headers)
	}
	enabled := 0
	if site.Enabled {
		enabled = 1
	}
	_, err := db.Exec(`
		INSERT INTO provider_sites (key, name, api, enabled, headers) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET name = excluded.name, api = excluded.api,
			enabled = excluded.enabled, headers = excluded.headers
	`, site.Key, site.Name, site.API, enabled, string(headers))
	if err != nil {
		return fmt.Errorf("failed to upsert provider site %s: %w", site.Key, err)
	}
	return nil
}
