package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// RecordError beschreibt einen fehlerhaften Einzel-Record. Der Record wird
// übersprungen, der Batch läuft weiter.
type RecordError struct {
	File   string
	Index  int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d in %s: %s", e.Index, e.File, e.Reason)
}

// ResolutionError zeigt an, dass ein Relationship einen natürlichen
// Schlüssel referenziert, der nicht im aufgelösten Mapping liegt.
// Dieser Fehler bricht den umschließenden Batch ab.
type ResolutionError struct {
	ScopusID string
	Kind     string
	Key      string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("paper %s references unresolved %s %q", e.ScopusID, e.Kind, e.Key)
}

// ConflictError meldet einen Contention-Konflikt konkurrierender Batches,
// der auch nach allen Retry-Versuchen bestehen blieb. Alle anderen
// Transaktionsfehler werden ohne eigene Typisierung `%w`-gewrappt
// durchgereicht; sie rollen den Batch zurück und brechen den Lauf ab.
type ConflictError struct {
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict not resolved after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Postgres-Fehlerklassen, die im Concurrent-Modus am Dimension-Upsert
// auftreten können und einen Retry rechtfertigen.
const (
	pgUniqueViolation  = "23505"
	pgDeadlockDetected = "40P01"
	pgSerialization    = "40001"
	pgLockNotAvailable = "55P03"
)

// isRetryableConflict klassifiziert Contention-Fehler konkurrierender
// Dimension-Upserts. Der SQLite-Zweig deckt die Testdatenbank ab.
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgDeadlockDetected, pgSerialization, pgLockNotAvailable:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "database is locked")
}
