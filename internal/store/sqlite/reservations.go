package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

const reservationColumns = `id, status, request_date, start_date, end_date, user_id, username, template_id, workstation_id, proxy_mapping_id, user_label, last_status_update, additional_info_json`

func (s *Store) ListReservations(ctx context.Context) ([]models.Reservation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY request_date`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *Store) ListReservationsByStatus(ctx context.Context, status models.ReservationStatus) ([]models.Reservation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status = ? ORDER BY request_date`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list reservations by status %s: %w", status, err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *Store) ListReservationsForWorkstation(ctx context.Context, workstationID string) ([]models.Reservation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE workstation_id = ? ORDER BY start_date`, workstationID)
	if err != nil {
		return nil, fmt.Errorf("list reservations for workstation %s: %w", workstationID, err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func scanReservations(rows *sql.Rows) ([]models.Reservation, error) {
	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, store.ErrNotFound
	}
	return r, err
}

func (s *Store) PutReservation(ctx context.Context, r models.Reservation) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, request_date = excluded.request_date,
			start_date = excluded.start_date, end_date = excluded.end_date, user_id = excluded.user_id,
			username = excluded.username, template_id = excluded.template_id, workstation_id = excluded.workstation_id,
			proxy_mapping_id = excluded.proxy_mapping_id, user_label = excluded.user_label,
			last_status_update = excluded.last_status_update, additional_info_json = excluded.additional_info_json`,
		r.ID, string(r.Status), formatTime(r.RequestDate), formatTime(r.StartDate), formatTime(r.EndDate),
		r.UserID, r.Username, r.TemplateID, nullIfEmpty(r.WorkstationID), nullIfEmpty(r.ProxyMappingID),
		nullIfEmpty(r.UserLabel), formatTime(r.LastStatusUpdate), nullIfEmpty(r.AdditionalInfoJSON))
	if err != nil {
		return fmt.Errorf("put reservation %s: %w", r.ID, err)
	}
	return nil
}

func scanReservation(row rowScanner) (models.Reservation, error) {
	var r models.Reservation
	var status string
	var requestDate, startDate, endDate, lastUpdate sql.NullString
	var workstationID, proxyMappingID, userLabel, additionalInfo sql.NullString
	if err := row.Scan(&r.ID, &status, &requestDate, &startDate, &endDate, &r.UserID, &r.Username, &r.TemplateID,
		&workstationID, &proxyMappingID, &userLabel, &lastUpdate, &additionalInfo); err != nil {
		return models.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	r.Status = models.ReservationStatus(status)
	r.WorkstationID = workstationID.String
	r.ProxyMappingID = proxyMappingID.String
	r.UserLabel = userLabel.String
	r.AdditionalInfoJSON = additionalInfo.String

	var err error
	if r.RequestDate, err = parseTime(requestDate); err != nil {
		return models.Reservation{}, err
	}
	if r.StartDate, err = parseTime(startDate); err != nil {
		return models.Reservation{}, err
	}
	if r.EndDate, err = parseTime(endDate); err != nil {
		return models.Reservation{}, err
	}
	if r.LastStatusUpdate, err = parseTime(lastUpdate); err != nil {
		return models.Reservation{}, err
	}
	return r, nil
}
