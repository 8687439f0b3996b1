package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

const proxyMappingColumns = `id, workstation_id, external_path, created_at, archived_at, archived, looked_up`

func (s *Store) ListProxyMappings(ctx context.Context) ([]models.ProxyMapping, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+proxyMappingColumns+` FROM proxy_mappings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list proxy mappings: %w", err)
	}
	defer rows.Close()

	var out []models.ProxyMapping
	for rows.Next() {
		m, err := scanProxyMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetProxyMapping(ctx context.Context, id string) (models.ProxyMapping, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+proxyMappingColumns+` FROM proxy_mappings WHERE id = ?`, id)
	m, err := scanProxyMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProxyMapping{}, store.ErrNotFound
	}
	return m, err
}

func (s *Store) GetProxyMappingByPath(ctx context.Context, externalPath string) (models.ProxyMapping, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+proxyMappingColumns+` FROM proxy_mappings WHERE external_path = ?`, externalPath)
	m, err := scanProxyMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProxyMapping{}, store.ErrNotFound
	}
	return m, err
}

func (s *Store) PutProxyMapping(ctx context.Context, m models.ProxyMapping) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO proxy_mappings (`+proxyMappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET workstation_id = excluded.workstation_id, external_path = excluded.external_path,
			created_at = excluded.created_at, archived_at = excluded.archived_at, archived = excluded.archived,
			looked_up = excluded.looked_up`,
		m.ID, m.WorkstationID, m.ExternalPath, formatTime(m.CreatedAt), formatTime(m.ArchivedAt), boolToInt(m.Archived), boolToInt(m.LookedUp))
	if err != nil {
		return fmt.Errorf("put proxy mapping %s: %w", m.ID, err)
	}
	return nil
}

func scanProxyMapping(row rowScanner) (models.ProxyMapping, error) {
	var m models.ProxyMapping
	var createdAt, archivedAt sql.NullString
	var archived, lookedUp int
	if err := row.Scan(&m.ID, &m.WorkstationID, &m.ExternalPath, &createdAt, &archivedAt, &archived, &lookedUp); err != nil {
		return models.ProxyMapping{}, fmt.Errorf("scan proxy mapping: %w", err)
	}
	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.ProxyMapping{}, err
	}
	if m.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return models.ProxyMapping{}, err
	}
	m.Archived = archived != 0
	m.LookedUp = lookedUp != 0
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
