package alert

import (
	"context"
	"fmt"

	"github.com/lighthouse-labs/policywatch/pkg/source"
	"github.com/lighthouse-labs/policywatch/pkg/store"
)

// Result aggregates the outcome of fanning one change out to every
// matching subscription.
type Result struct {
	SourceID int64
	ChangeID int64
	Sent     int
	Failed   int
	Errors   []error
}

// Engine resolves matching subscriptions for a changed source and
// dispatches one email per subscriber, sequentially - not in
// parallel, so the per-source consecutive_email_failures counter
// reflects delivery order rather than a race between goroutines.
type Engine struct {
	Store  *store.Store
	Sender EmailSender
}

func New(s *store.Store, sender EmailSender) *Engine {
	return &Engine{Store: s, Sender: sender}
}

// Dispatch sends an alert email for change to every active
// subscription matching src's country/visa_type. Per the accounting
// rule, the source's consecutive_email_failures counter is updated
// once for the whole batch: reset when at least one send succeeded,
// incremented only when every send in the batch failed.
func (e *Engine) Dispatch(ctx context.Context, src source.Source, change source.PolicyChange) (Result, error) {
	subs, err := e.Store.MatchingSubscriptions(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("resolve matching subscriptions: %w", err)
	}

	result := Result{SourceID: src.ID, ChangeID: change.ID}

	subject := fmt.Sprintf("Policy change detected: %s (%s)", src.Name, src.Country)
	body := formatBody(src, change)

	var lastErr error
	for _, sub := range subs {
		sendErr := e.Sender.Send(ctx, sub.Email, subject, body)
		if sendErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, sendErr)
			lastErr = sendErr
			continue
		}
		result.Sent++
	}

	if len(subs) > 0 {
		if result.Sent >= 1 {
			if err := e.Store.RecordEmailOutcome(ctx, src.ID, nil); err != nil {
				result.Errors = append(result.Errors, err)
			}
			if err := e.Store.MarkAlertSent(ctx, change.ID); err != nil {
				result.Errors = append(result.Errors, err)
			}
		} else if err := e.Store.RecordEmailOutcome(ctx, src.ID, lastErr); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	return result, nil
}

func formatBody(src source.Source, change source.PolicyChange) string {
	return fmt.Sprintf(
		"A change was detected for %s (%s, %s).\n\nDiff:\n%s\n",
		src.Name, src.Country, src.VisaType, change.DiffText,
	)
}
