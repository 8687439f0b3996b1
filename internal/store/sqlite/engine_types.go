package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func (s *Store) ListEngineTypes(ctx context.Context) ([]models.EngineType, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM engine_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list engine_types: %w", err)
	}
	defer rows.Close()

	var types []models.EngineType
	for rows.Next() {
		var t models.EngineType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan engine_type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) GetEngineType(ctx context.Context, id string) (models.EngineType, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, name FROM engine_types WHERE id = ?`, id)
	var t models.EngineType
	if err := row.Scan(&t.ID, &t.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EngineType{}, store.ErrNotFound
		}
		return models.EngineType{}, fmt.Errorf("get engine_type %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) PutEngineType(ctx context.Context, t models.EngineType) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO engine_types (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, t.ID, t.Name)
	if err != nil {
		return fmt.Errorf("put engine_type %s: %w", t.ID, err)
	}
	return nil
}
