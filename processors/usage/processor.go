// Package usage consumes review execution events and debits organization
// quota counters.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"

	tracer "github.com/getreviewhawk/reviewhawk/billing-engine/config"
	"github.com/getreviewhawk/reviewhawk/billing-engine/config/kafka"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// retryWindow bounds redelivery: events older than this are pushed to the
// dead letter topic instead of blocking the partition.
const retryWindow = 12 * time.Hour

var errMissingOrganizationID = errors.New("usage event carries no organization id")

// UsageStore is the persistence surface for quota debits, implemented by
// models.ApiStore.
type UsageStore interface {
	IncrementOrgUsage(orgID string, amount int) utils.Result[int]
}

type UsageProcessor struct {
	logger             *slog.Logger
	store              UsageStore
	deadLetterProducer kafka.MessageProducer
}

func NewUsageProcessor(logger *slog.Logger, store UsageStore, deadLetterProducer kafka.MessageProducer) *UsageProcessor {
	return &UsageProcessor{
		logger:             logger.With("component", "usage_processor"),
		store:              store,
		deadLetterProducer: deadLetterProducer,
	}
}

// ProcessRecords debits one batch of usage events and returns the records
// safe to commit. Retryable failures inside the retry window are left
// uncommitted so the consumer group redelivers them.
func (processor *UsageProcessor) ProcessRecords(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	span := tracer.GetTracerSpan(ctx, "usage", "Usage.ProcessRecords")
	span.SetAttributes(attribute.Int("records.length", len(records)))
	defer span.End()

	wg := sync.WaitGroup{}
	wg.Add(len(records))

	var mu sync.Mutex
	processedRecords := make([]*kgo.Record, 0, len(records))

	for _, record := range records {
		go func(record *kgo.Record) {
			defer wg.Done()

			sp := tracer.GetTracerSpan(ctx, "usage", "Usage.ProcessOneRecord")
			defer sp.End()

			event := UsageEvent{}
			err := json.Unmarshal(record.Value, &event)
			if err != nil {
				processor.logger.Error("error unmarshalling usage event", slog.String("error", err.Error()))
				utils.CaptureError(err)

				// An unparseable record will fail forever, commit it.
				mu.Lock()
				processedRecords = append(processedRecords, record)
				mu.Unlock()
				return
			}

			result := processor.processEvent(&event)
			if result.Failure() {
				processor.logger.Error("error while debiting usage",
					slog.String("organization_id", event.OrganizationID),
					slog.String("review_id", event.ReviewID),
					slog.String("error_code", result.ErrorCode()),
					slog.String("error", result.ErrorMsg()))

				if result.IsCapturable() {
					utils.CaptureErrorResultWithExtra(result, "usage_event", event)
				}

				if result.IsRetryable() && time.Since(event.IngestedAt.Time()) < retryWindow {
					// Leave the record uncommitted, it will be redelivered.
					return
				}

				go processor.produceToDeadLetterQueue(ctx, event, result)
			}

			mu.Lock()
			processedRecords = append(processedRecords, record)
			mu.Unlock()
		}(record)
	}

	wg.Wait()

	return processedRecords
}

func (processor *UsageProcessor) processEvent(event *UsageEvent) utils.Result[int] {
	if event.OrganizationID == "" {
		return utils.FailedResult[int](errMissingOrganizationID).
			AddErrorDetails("missing_organization_id", "usage event carries no organization id").
			NonRetryable().
			NonCapturable()
	}

	amount := event.Amount
	if amount == 0 {
		amount = 1
	}

	result := processor.store.IncrementOrgUsage(event.OrganizationID, amount)
	if result.Failure() {
		return forwardedUsageFailure(result)
	}

	return result
}

func (processor *UsageProcessor) produceToDeadLetterQueue(ctx context.Context, event UsageEvent, errorResult utils.AnyResult) {
	failedEvent := FailedUsageEvent{
		UsageEvent:          event,
		InitialErrorMessage: errorResult.ErrorMsg(),
		ErrorCode:           errorResult.ErrorCode(),
		ErrorMessage:        errorResult.ErrorMessage(),
		FailedAt:            time.Now(),
	}

	eventJson, err := json.Marshal(failedEvent)
	if err != nil {
		processor.logger.Error("error while marshaling failed usage event")
		utils.CaptureError(err)
		return
	}

	pushed := processor.deadLetterProducer.Produce(ctx, &kafka.ProducerMessage{
		Key:   []byte(event.OrganizationID),
		Value: eventJson,
	})

	if !pushed {
		processor.logger.Error("error while pushing to dead letter topic",
			slog.String("topic", processor.deadLetterProducer.GetTopic()))
		utils.CaptureErrorResultWithExtra(errorResult, "usage_event", event)
	}
}

func forwardedUsageFailure(r utils.Result[int]) utils.Result[int] {
	result := utils.FailedResult[int](r.Error()).
		AddErrorDetails("usage_debit_failed", "error while debiting organization usage")
	result.Retryable = r.IsRetryable()
	result.Capture = r.IsCapturable()
	return result
}
