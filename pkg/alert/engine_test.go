package alert

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/lighthouse-labs/policywatch/pkg/source"
	"github.com/lighthouse-labs/policywatch/pkg/store"
)

func TestDispatchSendsToEachMatchingSubscriptionSequentially(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "origin_country", "destination_country", "visa_type", "email", "active"}).
		AddRow(int64(1), "India", "Germany", "Work", "a@example.com", true).
		AddRow(int64(2), "India", "Germany", "Work", "b@example.com", true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, origin_country, destination_country, visa_type, email, active")).
		WithArgs("Germany").
		WillReturnRows(rows)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sources")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE policy_changes")).WillReturnResult(sqlmock.NewResult(0, 1))

	st := store.New(db)
	sender := NewInMemorySender()
	engine := New(st, sender)

	src := source.Source{ID: 10, Country: "Germany", VisaType: source.VisaWork, Active: true}
	change := source.PolicyChange{ID: 99, DiffText: "- old\n+ new"}

	result, err := engine.Dispatch(context.Background(), src, change)
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, sender.Sent, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchCountsPartialFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "origin_country", "destination_country", "visa_type", "email", "active"}).
		AddRow(int64(1), "India", "UK", "Student", "ok@example.com", true).
		AddRow(int64(2), "India", "UK", "Student", "bad@example.com", true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, origin_country, destination_country, visa_type, email, active")).
		WithArgs("UK").
		WillReturnRows(rows)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sources")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE policy_changes")).WillReturnResult(sqlmock.NewResult(0, 1))

	st := store.New(db)
	sender := NewInMemorySender()
	sender.Fail["bad@example.com"] = errors.New("mailbox full")
	engine := New(st, sender)

	src := source.Source{ID: 20, Country: "UK", VisaType: source.VisaStudent, Active: true}
	change := source.PolicyChange{ID: 55}

	result, err := engine.Dispatch(context.Background(), src, change)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
