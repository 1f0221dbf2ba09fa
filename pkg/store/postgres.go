// Package store persists sources, policy versions, policy changes,
// and route subscriptions in Postgres. Raw parameterized SQL via
// database/sql + lib/pq, no ORM, grounded on
// core/pkg/budget.PostgresStorage for single-row reads/writes and on
// core/pkg/store/ledger.PostgresLedger for the BeginTx/Rollback/Commit
// pattern used by the atomic version+change write.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lighthouse-labs/policywatch/pkg/source"
)

// Store wraps a *sql.DB with the operations the scheduler and alert
// engine need.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open is a convenience constructor for production callers.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db), nil
}

// DueSources returns active sources whose check_frequency matches
// freq - the selection predicate for RunDaily/RunWeekly. "custom"
// sources are never returned here; they run only via external
// triggers.
func (s *Store) DueSources(ctx context.Context, freq source.Frequency) ([]source.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, country, visa_type, type, check_frequency, name, url, config, active,
		       last_checked_at, last_change_detected_at,
		       consecutive_fetch_failures, consecutive_email_failures,
		       last_fetch_error, last_email_error, created_at, updated_at
		FROM sources
		WHERE active = true AND check_frequency = $1
		ORDER BY id
	`, freq)
	if err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	defer rows.Close()

	var out []source.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(r rowScanner) (source.Source, error) {
	var src source.Source
	var lastFetchErr, lastEmailErr sql.NullString
	var lastChecked, lastChanged sql.NullTime
	var configJSON []byte

	if err := r.Scan(&src.ID, &src.Country, &src.VisaType, &src.Type, &src.CheckFrequency, &src.Name, &src.URL,
		&configJSON, &src.Active, &lastChecked, &lastChanged,
		&src.ConsecutiveFetchFailures, &src.ConsecutiveEmailFailures,
		&lastFetchErr, &lastEmailErr, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return source.Source{}, fmt.Errorf("scan source row: %w", err)
	}

	src.LastFetchError = lastFetchErr.String
	src.LastEmailError = lastEmailErr.String
	if lastChecked.Valid {
		src.LastCheckedAt = &lastChecked.Time
	}
	if lastChanged.Valid {
		src.LastChangeDetectedAt = &lastChanged.Time
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &src.Config); err != nil {
			return source.Source{}, fmt.Errorf("unmarshal source config: %w", err)
		}
	}
	return src, nil
}

// LatestVersion returns the most recent PolicyVersion recorded for
// sourceID, or nil if the source has never been fetched successfully.
func (s *Store) LatestVersion(ctx context.Context, sourceID int64) (*source.PolicyVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, content_hash, raw_text, fetched_at, normalized_at, content_length, fetch_duration_ms
		FROM policy_versions
		WHERE source_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1
	`, sourceID)

	var v source.PolicyVersion
	var fetchDurationMs int64
	err := row.Scan(&v.ID, &v.SourceID, &v.ContentHash, &v.RawText, &v.FetchedAt, &v.NormalizedAt, &v.ContentLength, &fetchDurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest version: %w", err)
	}
	v.FetchDuration = time.Duration(fetchDurationMs) * time.Millisecond
	return &v, nil
}

// RecordObservation appends a new version for sourceID only when the
// content actually changed - prev is nil (first observation) or its
// hash differs from the new hash - and, in the differing-hash case,
// also appends a change row carrying diffText. When prev is non-nil
// and its hash matches the new hash, no version row is written at all:
// per spec.md's idempotence law, running the scheduler twice over an
// unchanged source must produce exactly one PolicyVersion total, not
// one per run. Everything happens inside a single transaction, per the
// single-writer/all-or-nothing requirement.
func (s *Store) RecordObservation(ctx context.Context, sourceID int64, newVersion source.PolicyVersion, prev *source.PolicyVersion, diffText string) (versionID int64, changeID int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if prev != nil && prev.ContentHash == newVersion.ContentHash {
		if _, err = tx.ExecContext(ctx, `
			UPDATE sources
			SET last_checked_at = NOW(),
			    consecutive_fetch_failures = 0, last_fetch_error = NULL, updated_at = NOW()
			WHERE id = $1
		`, sourceID); err != nil {
			return 0, 0, fmt.Errorf("update source after fetch: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return 0, 0, fmt.Errorf("commit tx: %w", err)
		}
		return prev.ID, 0, nil
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO policy_versions (source_id, content_hash, raw_text, fetched_at, normalized_at, content_length, fetch_duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, sourceID, newVersion.ContentHash, newVersion.RawText, newVersion.FetchedAt, newVersion.NormalizedAt,
		newVersion.ContentLength, newVersion.FetchDuration.Milliseconds()).Scan(&versionID)
	if err != nil {
		return 0, 0, fmt.Errorf("insert policy version: %w", err)
	}

	if prev != nil {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO policy_changes (source_id, old_version_id, new_version_id, old_hash, new_hash, diff_text, diff_length, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING id
		`, sourceID, prev.ID, versionID, prev.ContentHash, newVersion.ContentHash, diffText, len(diffText)).Scan(&changeID)
		if err != nil {
			return 0, 0, fmt.Errorf("insert policy change: %w", err)
		}

		if _, err = tx.ExecContext(ctx, `
			UPDATE sources
			SET last_change_detected_at = NOW(), last_checked_at = NOW(),
			    consecutive_fetch_failures = 0, last_fetch_error = NULL, updated_at = NOW()
			WHERE id = $1
		`, sourceID); err != nil {
			return 0, 0, fmt.Errorf("update source after change: %w", err)
		}
	} else {
		if _, err = tx.ExecContext(ctx, `
			UPDATE sources
			SET last_checked_at = NOW(),
			    consecutive_fetch_failures = 0, last_fetch_error = NULL, updated_at = NOW()
			WHERE id = $1
		`, sourceID); err != nil {
			return 0, 0, fmt.Errorf("update source after fetch: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}
	return versionID, changeID, nil
}

// MarkAlertSent stamps alert_sent_at on a change once at least one
// email in its batch was delivered successfully.
func (s *Store) MarkAlertSent(ctx context.Context, changeID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE policy_changes SET alert_sent_at = NOW() WHERE id = $1`, changeID)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

// RecordFetchFailure increments the source's consecutive failure
// counter and records the error message.
func (s *Store) RecordFetchFailure(ctx context.Context, sourceID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources
		SET consecutive_fetch_failures = consecutive_fetch_failures + 1,
		    last_fetch_error = $2,
		    last_checked_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`, sourceID, errMsg)
	if err != nil {
		return fmt.Errorf("record fetch failure: %w", err)
	}
	return nil
}

// RecordEmailOutcome updates the source's consecutive email-failure
// counter: reset to 0 on success, incremented with the error recorded
// on failure.
func (s *Store) RecordEmailOutcome(ctx context.Context, sourceID int64, err error) error {
	if err == nil {
		_, execErr := s.db.ExecContext(ctx, `
			UPDATE sources
			SET consecutive_email_failures = 0, last_email_error = NULL, updated_at = NOW()
			WHERE id = $1
		`, sourceID)
		if execErr != nil {
			return fmt.Errorf("reset email failure counter: %w", execErr)
		}
		return nil
	}

	_, execErr := s.db.ExecContext(ctx, `
		UPDATE sources
		SET consecutive_email_failures = consecutive_email_failures + 1,
		    last_email_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, sourceID, err.Error())
	if execErr != nil {
		return fmt.Errorf("record email failure: %w", execErr)
	}
	return nil
}

// MatchingSubscriptions returns all active route subscriptions whose
// destination_country/visa_type matches src.
func (s *Store) MatchingSubscriptions(ctx context.Context, src source.Source) ([]source.RouteSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, origin_country, destination_country, visa_type, email, active
		FROM route_subscriptions
		WHERE active = true AND LOWER(destination_country) = LOWER($1)
	`, src.Country)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []source.RouteSubscription
	for rows.Next() {
		var rs source.RouteSubscription
		if err := rows.Scan(&rs.ID, &rs.OriginCountry, &rs.DestinationCountry, &rs.VisaType, &rs.Email, &rs.Active); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		if rs.Matches(src) {
			out = append(out, rs)
		}
	}
	return out, rows.Err()
}
