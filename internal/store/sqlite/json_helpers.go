package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
)

func marshalResourceMap(m models.ResourceMap) (string, error) {
	if m == nil {
		m = models.ResourceMap{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal resource map: %w", err)
	}
	return string(raw), nil
}

func unmarshalResourceMap(raw string) (models.ResourceMap, error) {
	m := models.ResourceMap{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal resource map: %w", err)
	}
	return m, nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal string list: %w", err)
	}
	return string(raw), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	return values, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func stringOrEmpty(ns *string) string {
	if ns == nil {
		return ""
	}
	return *ns
}
