// Package devcache is a best-effort, non-authoritative SQLite cache of
// device descriptions the gateway has dispatched. It exists purely so a
// restarted gateway can log what it knew before; pairing state and live
// device data always come from the technology managers, never from here.
package devcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

const schema = `
CREATE TABLE IF NOT EXISTS device_descriptions (
	device_id       TEXT PRIMARY KEY,
	vendor          TEXT NOT NULL,
	product         TEXT NOT NULL,
	modules_json    TEXT NOT NULL,
	refresh_time_ms INTEGER NOT NULL,
	last_seen_unix  INTEGER NOT NULL
);
`

// refresh_time_ms sentinels, mirroring the RefreshTime model.
const (
	refreshNoneMS     = -1
	refreshDisabledMS = -2
)

// Cache wraps the SQLite handle.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache database. An empty path selects the
// per-user default location under the config directory.
func Open(path string) (*Cache, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return nil, fmt.Errorf("devcache: default path: %w", err)
		}
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("devcache: expand home: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("devcache: create directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("devcache: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("devcache: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("devcache: migrate: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

func (c *Cache) Path() string { return c.path }

func (c *Cache) Close() error { return c.db.Close() }

type moduleRecord struct {
	Type       string   `json:"type"`
	Attributes []string `json:"attributes,omitempty"`
}

func encodeModules(modules []beeeon.Module) (string, error) {
	records := make([]moduleRecord, 0, len(modules))
	for _, m := range modules {
		rec := moduleRecord{Type: m.Type.String()}
		for _, a := range m.Attributes {
			rec.Attributes = append(rec.Attributes, string(a))
		}
		records = append(records, rec)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeRefresh(r beeeon.RefreshTime) int64 {
	switch {
	case r.None:
		return refreshNoneMS
	case r.Disabled:
		return refreshDisabledMS
	default:
		return r.Period.Milliseconds()
	}
}

// Upsert records (or refreshes) one dispatched description.
func (c *Cache) Upsert(ctx context.Context, desc beeeon.DeviceDescription) error {
	modules, err := encodeModules(desc.Modules)
	if err != nil {
		return fmt.Errorf("devcache: encode modules: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO device_descriptions
			(device_id, vendor, product, modules_json, refresh_time_ms, last_seen_unix)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			vendor = excluded.vendor,
			product = excluded.product,
			modules_json = excluded.modules_json,
			refresh_time_ms = excluded.refresh_time_ms,
			last_seen_unix = excluded.last_seen_unix`,
		desc.DeviceID.String(), desc.Vendor, desc.Product, modules,
		encodeRefresh(desc.RefreshTime), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("devcache: upsert %s: %w", desc.DeviceID, err)
	}
	return nil
}

// Entry is one cached description row.
type Entry struct {
	DeviceID beeeon.DeviceID
	Vendor   string
	Product  string
	Modules  []string
	LastSeen time.Time
}

// All returns every cached entry, most recently seen first.
func (c *Cache) All(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT device_id, vendor, product, modules_json, last_seen_unix
		FROM device_descriptions
		ORDER BY last_seen_unix DESC`)
	if err != nil {
		return nil, fmt.Errorf("devcache: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			idStr    string
			entry    Entry
			modules  string
			lastSeen int64
		)
		if err := rows.Scan(&idStr, &entry.Vendor, &entry.Product, &modules, &lastSeen); err != nil {
			return nil, fmt.Errorf("devcache: scan: %w", err)
		}

		id, err := beeeon.ParseDeviceID(idStr)
		if err != nil {
			continue // tolerate rows written by a newer scheme
		}
		entry.DeviceID = id
		entry.LastSeen = time.Unix(lastSeen, 0)

		var records []moduleRecord
		if err := json.Unmarshal([]byte(modules), &records); err == nil {
			for _, r := range records {
				entry.Modules = append(entry.Modules, r.Type)
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func defaultPath() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			baseDir = xdg
			break
		}
		fallthrough
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, ".config")
	}

	return filepath.Join(baseDir, "homai-gateway", "devices.db"), nil
}
