package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func (s *Store) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, internal_name, description, allowed_engine_type_ids_json, tag_ids_json, resource_requirements_json FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) GetTemplate(ctx context.Context, id string) (models.Template, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, name, internal_name, description, allowed_engine_type_ids_json, tag_ids_json, resource_requirements_json FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Template{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) PutTemplate(ctx context.Context, t models.Template) error {
	allowedTypes, err := marshalStrings(t.AllowedEngineTypeIDs)
	if err != nil {
		return err
	}
	tagIDs, err := marshalStrings(t.TagIDs)
	if err != nil {
		return err
	}
	resources, err := marshalResourceMap(t.ResourceRequirements)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO templates (id, name, internal_name, description, allowed_engine_type_ids_json, tag_ids_json, resource_requirements_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, internal_name = excluded.internal_name, description = excluded.description,
			allowed_engine_type_ids_json = excluded.allowed_engine_type_ids_json, tag_ids_json = excluded.tag_ids_json,
			resource_requirements_json = excluded.resource_requirements_json`,
		t.ID, t.Name, t.InternalName, nullIfEmpty(t.Description), allowedTypes, tagIDs, resources)
	if err != nil {
		return fmt.Errorf("put template %s: %w", t.ID, err)
	}
	return nil
}

func scanTemplate(row rowScanner) (models.Template, error) {
	var t models.Template
	var description sql.NullString
	var allowedJSON, tagJSON, resourcesJSON string
	if err := row.Scan(&t.ID, &t.Name, &t.InternalName, &description, &allowedJSON, &tagJSON, &resourcesJSON); err != nil {
		return models.Template{}, fmt.Errorf("scan template: %w", err)
	}
	allowed, err := unmarshalStrings(allowedJSON)
	if err != nil {
		return models.Template{}, err
	}
	tagIDs, err := unmarshalStrings(tagJSON)
	if err != nil {
		return models.Template{}, err
	}
	resources, err := unmarshalResourceMap(resourcesJSON)
	if err != nil {
		return models.Template{}, err
	}
	t.Description = description.String
	t.AllowedEngineTypeIDs = allowed
	t.TagIDs = tagIDs
	t.ResourceRequirements = resources
	return t, nil
}
