// Package store is the structured persistent region store: tiles, typed
// geometry layers, offline-region records and their access log, backed by
// SQLite. Read failures degrade to not-found so a failing disk never crashes
// the caller; callers fall through to a network fetch instead.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func New(path string, l logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// A single shared handle with serialized writes.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: l,
		now:    time.Now,
	}

	if err := s.runMigrations(); err != nil {
		return nil, err
	}

	l.Info("region store initialized", "path", path)

	return s, nil
}

func (s *Store) runMigrations() error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return err
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutTile upserts raw tile bytes keyed by (z,x,y,source).
func (s *Store) PutTile(id geo.TileID, source string, data []byte) error {
	query := `INSERT INTO tiles (z, x, y, source, data, stored_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(z, x, y, source) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`

	_, err := s.db.Exec(query, id.Z, id.X, id.Y, source, data, s.now())
	if err != nil {
		s.logger.Error("tile store write failed", "tile", id.String(), "error", err)
		return err
	}
	return nil
}

// GetTile returns the stored bytes for a tile, or false when absent or the
// read fails.
func (s *Store) GetTile(id geo.TileID, source string) ([]byte, bool) {
	query := `SELECT data FROM tiles WHERE z = ? AND x = ? AND y = ? AND source = ?`

	var data []byte
	err := s.db.QueryRow(query, id.Z, id.X, id.Y, source).Scan(&data)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Error("tile store read failed", "tile", id.String(), "error", err)
		}
		return nil, false
	}
	return data, true
}

// PutGeometry upserts a geometry layer payload keyed by the rounded bounds
// string, zoom level and data type, so identical viewport requests collide
// deterministically.
func (s *Store) PutGeometry(b geo.Bounds, zoomLevel int, dt payload.DataType, p payload.Payload) error {
	raw, err := p.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode geometry payload: %w", err)
	}

	query := `INSERT INTO geometry (bounds_key, zoom_level, data_type, payload, stored_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(bounds_key, zoom_level, data_type) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`

	_, err = s.db.Exec(query, b.Key(), zoomLevel, string(dt), raw, s.now())
	if err != nil {
		s.logger.Error("geometry store write failed", "bounds", b.Key(), "type", dt, "error", err)
		return err
	}
	return nil
}

func (s *Store) GetGeometry(b geo.Bounds, zoomLevel int, dt payload.DataType) (payload.Payload, bool) {
	query := `SELECT payload FROM geometry WHERE bounds_key = ? AND zoom_level = ? AND data_type = ?`

	var raw []byte
	err := s.db.QueryRow(query, b.Key(), zoomLevel, string(dt)).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Error("geometry store read failed", "bounds", b.Key(), "type", dt, "error", err)
		}
		return payload.Payload{}, false
	}

	p, err := payload.Decode(raw)
	if err != nil {
		s.logger.Warn("dropping corrupt geometry row", "bounds", b.Key(), "type", dt, "error", err)
		_, _ = s.db.Exec(`DELETE FROM geometry WHERE bounds_key = ? AND zoom_level = ? AND data_type = ?`,
			b.Key(), zoomLevel, string(dt))
		return payload.Payload{}, false
	}

	return p, true
}
