package sqlite

import (
	"database/sql"
	"time"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw sql.NullString) (time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, raw.String)
}
