package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func (s *Store) ListHosts(ctx context.Context) ([]models.Host, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, ip_address, engine_ids_json FROM hosts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []models.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

func (s *Store) GetHost(ctx context.Context, id string) (models.Host, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, name, ip_address, engine_ids_json FROM hosts WHERE id = ?`, id)
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Host{}, store.ErrNotFound
	}
	return h, err
}

func (s *Store) PutHost(ctx context.Context, h models.Host) error {
	engineIDs, err := marshalStrings(h.EngineIDs)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO hosts (id, name, ip_address, engine_ids_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, ip_address = excluded.ip_address, engine_ids_json = excluded.engine_ids_json`,
		h.ID, h.Name, h.IPAddress, engineIDs)
	if err != nil {
		return fmt.Errorf("put host %s: %w", h.ID, err)
	}
	return nil
}

func scanHost(row rowScanner) (models.Host, error) {
	var h models.Host
	var engineIDsJSON string
	if err := row.Scan(&h.ID, &h.Name, &h.IPAddress, &engineIDsJSON); err != nil {
		return models.Host{}, fmt.Errorf("scan host: %w", err)
	}
	ids, err := unmarshalStrings(engineIDsJSON)
	if err != nil {
		return models.Host{}, err
	}
	h.EngineIDs = ids
	return h, nil
}
