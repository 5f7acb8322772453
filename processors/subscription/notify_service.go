package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/getreviewhawk/reviewhawk/billing-engine/config/kafka"
	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// SubscriptionChangedMessage is the payload published after every applied
// state transition. Consumers (console cache invalidation, notification
// service) treat it as a hint to re-read the organization row, so a lost
// message degrades freshness but never correctness.
type SubscriptionChangedMessage struct {
	OrganizationID    string                   `json:"organization_id"`
	Tier              plans.Tier               `json:"tier"`
	Status            plans.SubscriptionStatus `json:"status"`
	SeatCount         int                      `json:"seat_count"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	EventType         string                   `json:"event_type"`
	OccurredAt        time.Time                `json:"occurred_at"`
}

type NotifyService struct {
	producer kafka.MessageProducer
	flagger  models.Flagger
	logger   *slog.Logger
}

func NewNotifyService(producer kafka.MessageProducer, flagger models.Flagger, logger *slog.Logger) *NotifyService {
	return &NotifyService{
		producer: producer,
		flagger:  flagger,
		logger:   logger,
	}
}

// NotifyChanged publishes the change and flags the organization for
// entitlement refresh. Both paths are best effort: a broker or Redis outage
// must not fail webhook processing, the row is already committed.
func (ns *NotifyService) NotifyChanged(ctx context.Context, org *models.Organization, eventType string) {
	if ns.producer != nil {
		message := SubscriptionChangedMessage{
			OrganizationID:    org.ID,
			Tier:              org.Tier(),
			Status:            org.Status(),
			SeatCount:         org.SeatCount,
			CancelAtPeriodEnd: org.CancelAtPeriodEnd,
			EventType:         eventType,
			OccurredAt:        time.Now().UTC(),
		}

		messageJson, err := json.Marshal(message)
		if err != nil {
			ns.logger.Error("error while marshaling subscription changed message")
			utils.CaptureError(err)
		} else {
			pushed := ns.producer.Produce(ctx, &kafka.ProducerMessage{
				Key:   []byte(org.ID),
				Value: messageJson,
			})
			if !pushed {
				ns.logger.Error("error while pushing to subscription changed topic",
					slog.String("topic", ns.producer.GetTopic()))
			}
		}
	}

	if ns.flagger != nil {
		if err := ns.flagger.Flag(org.ID); err != nil {
			ns.logger.Error("error while flagging entitlements change", slog.String("error", err.Error()))
			utils.CaptureError(err)
		}
	}
}
