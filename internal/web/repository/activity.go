package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Add stores an activity entry. details, when non-nil, is stored as JSON.
func (r *ActivityRepository) Add(entry *models.ActivityEntry, details any) error {
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		entry.Details = string(data)
	}
	entry.CreatedAt = time.Now().UTC()

	res, err := r.db.Exec(`
		INSERT INTO activity_log (user_id, username, action, entity_type, entity_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Username, entry.Action, entry.EntityType, entry.EntityID, entry.Details, entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// List returns entries newest first, and the total matching the filter
func (r *ActivityRepository) List(filter models.ActivityFilter) ([]models.ActivityEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		where += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		where += " AND entity_type = ?"
		args = append(args, filter.EntityType)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM activity_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, COALESCE(user_id, ''), COALESCE(username, ''), action,
		       COALESCE(entity_type, ''), COALESCE(entity_id, ''), COALESCE(details, ''),
		       COALESCE(ip_address, ''), created_at
		FROM activity_log` + where + " ORDER BY id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.ActivityEntry{}
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Action,
			&e.EntityType, &e.EntityID, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// CountBefore counts entries recorded before cutoff
func (r *ActivityRepository) CountBefore(cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM activity_log WHERE created_at < ?", cutoff.UTC()).Scan(&n)
	return n, err
}

// DeleteBefore removes entries recorded before cutoff
func (r *ActivityRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM activity_log WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
