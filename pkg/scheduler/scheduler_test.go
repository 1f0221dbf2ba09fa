package scheduler

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/lighthouse-labs/policywatch/pkg/alert"
	"github.com/lighthouse-labs/policywatch/pkg/fetch"
	"github.com/lighthouse-labs/policywatch/pkg/normalize"
	"github.com/lighthouse-labs/policywatch/pkg/registry"
	"github.com/lighthouse-labs/policywatch/pkg/source"
	"github.com/lighthouse-labs/policywatch/pkg/store"
)

func dueSourceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "country", "visa_type", "type", "check_frequency", "name", "url", "config", "active",
		"last_checked_at", "last_change_detected_at",
		"consecutive_fetch_failures", "consecutive_email_failures",
		"last_fetch_error", "last_email_error", "created_at", "updated_at",
	})
}

func TestRunDailyProcessesNoSourcesCleanly(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, country, visa_type, type, check_frequency, name, url, config, active")).
		WithArgs(source.FrequencyDaily).
		WillReturnRows(dueSourceRows())

	st := store.New(db)
	sched := New(st, fetch.NewClient(5*time.Second, 0, time.Millisecond, "test-agent"), registry.New(), nil, nil, nil, 4, time.Second)

	result, err := sched.RunDaily(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, result.SourcesProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDailySkipsVersionWriteOnHashMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Now()
	stableHash := normalize.Hash(normalize.Text("stable content"))
	rows := dueSourceRows().AddRow(
		int64(1), "Germany", "Work", "html", "daily", "Blue Card Portal", "https://example.test/blue-card",
		[]byte(`{}`), true, nil, nil, 0, 0, nil, nil, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, country, visa_type, type, check_frequency, name, url, config, active")).
		WithArgs(source.FrequencyDaily).
		WillReturnRows(rows)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_id, content_hash, raw_text, fetched_at, normalized_at, content_length, fetch_duration_ms")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "source_id", "content_hash", "raw_text", "fetched_at", "normalized_at", "content_length", "fetch_duration_ms",
		}).AddRow(int64(5), int64(1), stableHash, "stable content", now, now, len("stable content"), int64(100)))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sources")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st := store.New(db)
	reg := registry.New()
	reg.Register(registry.Entry{
		Country:    "Germany",
		VisaType:   source.VisaWork,
		SourceType: source.KindHTML,
		Handler: func(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error) {
			return &fetch.Result{Success: true, RawText: "stable content", FetchedAt: now}, nil
		},
	})

	sched := New(st, fetch.NewClient(5*time.Second, 0, time.Millisecond, "test-agent"), reg, nil, nil, nil, 4, time.Second)

	result, err := sched.RunDaily(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, result.SourcesProcessed)
	assert.Equal(t, 1, result.SourcesSucceeded)
	assert.Equal(t, 0, result.ChangesDetected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDailyDispatchesAlertsOnChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := dueSourceRows().AddRow(
		int64(2), "Canada", "Student", "html", "daily", "IRCC Study Permit", "https://example.test/study-permit",
		[]byte(`{}`), true, nil, nil, 0, 0, nil, nil, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, country, visa_type, type, check_frequency, name, url, config, active")).
		WithArgs(source.FrequencyDaily).
		WillReturnRows(rows)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_id, content_hash, raw_text, fetched_at, normalized_at, content_length, fetch_duration_ms")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "source_id", "content_hash", "raw_text", "fetched_at", "normalized_at", "content_length", "fetch_duration_ms",
		}).AddRow(int64(9), int64(2), "old-hash-value", "old content", now, now, len("old content"), int64(100)))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO policy_versions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO policy_changes")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sources")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, origin_country, destination_country, visa_type, email, active")).
		WithArgs("Canada").
		WillReturnRows(sqlmock.NewRows([]string{"id", "origin_country", "destination_country", "visa_type", "email", "active"}).
			AddRow(int64(1), "India", "Canada", "Student", "subscriber@example.com", true))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sources")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE policy_changes")).WillReturnResult(sqlmock.NewResult(0, 1))

	st := store.New(db)
	reg := registry.New()
	reg.Register(registry.Entry{
		Country:    "Canada",
		VisaType:   source.VisaStudent,
		SourceType: source.KindHTML,
		Handler: func(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error) {
			return &fetch.Result{Success: true, RawText: "new content", FetchedAt: now}, nil
		},
	})

	sender := alert.NewInMemorySender()
	engine := alert.New(st, sender)
	sched := New(st, fetch.NewClient(5*time.Second, 0, time.Millisecond, "test-agent"), reg, engine, nil, nil, 4, time.Second)

	result, err := sched.RunDaily(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, result.ChangesDetected)
	assert.Equal(t, 1, result.AlertsSent)
	assert.Len(t, sender.Sent, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDailyRecoversFromPanickingHandler(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := dueSourceRows().AddRow(
		int64(3), "UK", "Both", "html", "daily", "UKVI Guidance", "https://example.test/ukvi",
		[]byte(`{}`), true, nil, nil, 0, 0, nil, nil, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, country, visa_type, type, check_frequency, name, url, config, active")).
		WithArgs(source.FrequencyDaily).
		WillReturnRows(rows)

	st := store.New(db)
	reg := registry.New()
	reg.Register(registry.Entry{
		Country:    "UK",
		VisaType:   source.VisaBoth,
		SourceType: source.KindHTML,
		Handler: func(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error) {
			panic("boom")
		},
	})

	sched := New(st, fetch.NewClient(5*time.Second, 0, time.Millisecond, "test-agent"), reg, nil, nil, nil, 4, time.Second)

	result, err := sched.RunDaily(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, result.SourcesFailed)
	assert.Len(t, result.Errors, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
