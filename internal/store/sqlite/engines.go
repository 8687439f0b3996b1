package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func (s *Store) ListEngines(ctx context.Context) ([]models.Engine, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, port, type_id, available_resources_json, max_resources_json, additional_info_json FROM engines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list engines: %w", err)
	}
	defer rows.Close()

	var engines []models.Engine
	for rows.Next() {
		e, err := scanEngine(rows)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}
	return engines, rows.Err()
}

func (s *Store) GetEngine(ctx context.Context, id string) (models.Engine, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, name, port, type_id, available_resources_json, max_resources_json, additional_info_json FROM engines WHERE id = ?`, id)
	e, err := scanEngine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Engine{}, store.ErrNotFound
	}
	return e, err
}

func (s *Store) PutEngine(ctx context.Context, e models.Engine) error {
	avail, err := marshalResourceMap(e.AvailableResources)
	if err != nil {
		return err
	}
	max, err := marshalResourceMap(e.MaxResources)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO engines (id, name, port, type_id, available_resources_json, max_resources_json, additional_info_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, port = excluded.port, type_id = excluded.type_id,
			available_resources_json = excluded.available_resources_json, max_resources_json = excluded.max_resources_json,
			additional_info_json = excluded.additional_info_json`,
		e.ID, e.Name, e.Port, e.TypeID, avail, max, nullIfEmpty(e.AdditionalInfoJSON))
	if err != nil {
		return fmt.Errorf("put engine %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) DeleteEngine(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM engines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete engine %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEngine(row rowScanner) (models.Engine, error) {
	var e models.Engine
	var availJSON, maxJSON string
	var additional sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &e.Port, &e.TypeID, &availJSON, &maxJSON, &additional); err != nil {
		return models.Engine{}, fmt.Errorf("scan engine: %w", err)
	}
	avail, err := unmarshalResourceMap(availJSON)
	if err != nil {
		return models.Engine{}, err
	}
	max, err := unmarshalResourceMap(maxJSON)
	if err != nil {
		return models.Engine{}, err
	}
	e.AvailableResources = avail
	e.MaxResources = max
	e.AdditionalInfoJSON = additional.String
	return e, nil
}
