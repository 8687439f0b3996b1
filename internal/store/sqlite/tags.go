package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) GetTag(ctx context.Context, id string) (models.Tag, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE id = ?`, id)
	var t models.Tag
	if err := row.Scan(&t.ID, &t.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Tag{}, store.ErrNotFound
		}
		return models.Tag{}, fmt.Errorf("get tag %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) PutTag(ctx context.Context, tag models.Tag) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO tags (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, tag.ID, tag.Name)
	if err != nil {
		return fmt.Errorf("put tag %s: %w", tag.ID, err)
	}
	return nil
}
