package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

const workstationColumns = `id, ip, port, template_id, host_id, engine_id, status, engine_internal_name, last_status_update, boot_started_at, boot_completed_at`

func (s *Store) ListWorkstations(ctx context.Context) ([]models.Workstation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+workstationColumns+` FROM workstations ORDER BY last_status_update DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workstations: %w", err)
	}
	defer rows.Close()
	return scanWorkstations(rows)
}

func (s *Store) ListWorkstationsByStatus(ctx context.Context, status models.WorkstationStatus) ([]models.Workstation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+workstationColumns+` FROM workstations WHERE status = ? ORDER BY last_status_update`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list workstations by status %s: %w", status, err)
	}
	defer rows.Close()
	return scanWorkstations(rows)
}

func scanWorkstations(rows *sql.Rows) ([]models.Workstation, error) {
	var out []models.Workstation
	for rows.Next() {
		w, err := scanWorkstation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) GetWorkstation(ctx context.Context, id string) (models.Workstation, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+workstationColumns+` FROM workstations WHERE id = ?`, id)
	w, err := scanWorkstation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workstation{}, store.ErrNotFound
	}
	return w, err
}

func (s *Store) PutWorkstation(ctx context.Context, w models.Workstation) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO workstations (`+workstationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ip = excluded.ip, port = excluded.port, template_id = excluded.template_id,
			host_id = excluded.host_id, engine_id = excluded.engine_id, status = excluded.status,
			engine_internal_name = excluded.engine_internal_name, last_status_update = excluded.last_status_update,
			boot_started_at = excluded.boot_started_at, boot_completed_at = excluded.boot_completed_at`,
		w.ID, nullIfEmpty(w.IP), nullIfZero(w.Port), w.TemplateID, nullIfEmpty(w.HostID), nullIfEmpty(w.EngineID),
		string(w.Status), nullIfEmpty(w.EngineInternalName), formatTime(w.LastStatusUpdate),
		formatTime(w.BootStartedAt), formatTime(w.BootCompletedAt))
	if err != nil {
		return fmt.Errorf("put workstation %s: %w", w.ID, err)
	}
	return nil
}

func (s *Store) DeleteWorkstation(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM workstations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workstation %s: %w", id, err)
	}
	return nil
}

func scanWorkstation(row rowScanner) (models.Workstation, error) {
	var w models.Workstation
	var ip, hostID, engineID, internalName sql.NullString
	var port sql.NullInt64
	var lastUpdate, bootStarted, bootCompleted sql.NullString
	var status string
	if err := row.Scan(&w.ID, &ip, &port, &w.TemplateID, &hostID, &engineID, &status, &internalName, &lastUpdate, &bootStarted, &bootCompleted); err != nil {
		return models.Workstation{}, fmt.Errorf("scan workstation: %w", err)
	}
	w.IP = ip.String
	w.Port = int(port.Int64)
	w.HostID = hostID.String
	w.EngineID = engineID.String
	w.Status = models.WorkstationStatus(status)
	w.EngineInternalName = internalName.String

	var err error
	if w.LastStatusUpdate, err = parseTime(lastUpdate); err != nil {
		return models.Workstation{}, err
	}
	if w.BootStartedAt, err = parseTime(bootStarted); err != nil {
		return models.Workstation{}, err
	}
	if w.BootCompletedAt, err = parseTime(bootCompleted); err != nil {
		return models.Workstation{}, err
	}
	return w, nil
}

func nullIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
