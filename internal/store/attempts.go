package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/allenai/olmoe-modeld/internal/domain"
)

func (s *PersistentStore) SaveAttempt(a *domain.Attempt) error {

	query := `INSERT OR REPLACE INTO attempts (id, url, status, downloaded_bytes, total_bytes, started_at, finished_at, error)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var finished sql.NullTime
	if !a.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: a.FinishedAt, Valid: true}
	}

	_, err := s.db.Exec(query,
		a.ID,
		a.URL,
		a.Status,
		a.DownloadedBytes,
		a.TotalBytes,
		a.StartedAt,
		finished,
		a.Error,
	)
	return err
}

// GetAttempts returns the full history, oldest first. KSUIDs sort
// chronologically so ordering by id is ordering by start time.
func (s *PersistentStore) GetAttempts() ([]*domain.Attempt, error) {
	rows, err := s.db.Query(`
		SELECT id, url, status, downloaded_bytes, total_bytes, started_at, finished_at, error
		FROM attempts
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

func (s *PersistentStore) GetAttempt(id string) (*domain.Attempt, error) {
	row := s.db.QueryRow(`
		SELECT id, url, status, downloaded_bytes, total_bytes, started_at, finished_at, error
		FROM attempts
		WHERE id = ? LIMIT 1`, id)

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to fetch attempt: %w", err)
	}

	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	a := &domain.Attempt{}
	var finished sql.NullTime

	err := row.Scan(&a.ID, &a.URL, &a.Status, &a.DownloadedBytes, &a.TotalBytes, &a.StartedAt, &finished, &a.Error)
	if err != nil {
		return nil, err
	}

	if finished.Valid {
		a.FinishedAt = finished.Time
	}

	return a, nil
}
