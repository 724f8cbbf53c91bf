package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	"github.com/apptracker/balancer-api/internal/service/notification"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/messaging"
)

// NotificationWorker consumes engine decisions off the broker and tells the
// people affected. It sits downstream of the outbox processor, so a broker
// outage delays notifications but never loses them.
type NotificationWorker struct {
	broker       messaging.Broker
	appointments repository.AppointmentRepository
	providers    repository.ProviderRepository
	notifier     notification.Service
	logger       *logger.Logger
}

func NewNotificationWorker(
	broker messaging.Broker,
	appointments repository.AppointmentRepository,
	providers repository.ProviderRepository,
	notifier notification.Service,
	log *logger.Logger,
) *NotificationWorker {
	return &NotificationWorker{
		broker:       broker,
		appointments: appointments,
		providers:    providers,
		notifier:     notifier,
		logger:       log,
	}
}

func (w *NotificationWorker) Start(ctx context.Context) {
	reassigns, err := w.broker.Subscribe(ctx, model.AuditEventReassign)
	if err != nil {
		w.logger.Error(err, "Failed to subscribe to reassignment events")
		return
	}
	delays, err := w.broker.Subscribe(ctx, model.AuditEventDelayPropagate)
	if err != nil {
		w.logger.Error(err, "Failed to subscribe to delay events")
		return
	}

	w.logger.Info("Starting notification worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down notification worker")
			return
		case raw, ok := <-reassigns:
			if !ok {
				return
			}
			w.handleReassign(ctx, raw)
		case raw, ok := <-delays:
			if !ok {
				return
			}
			w.handleDelay(ctx, raw)
		}
	}
}

func (w *NotificationWorker) handleReassign(ctx context.Context, raw []byte) {
	var evt struct {
		AppointmentID      uuid.UUID  `json:"appointment_id"`
		ProviderID         uuid.UUID  `json:"provider_id"`
		PreviousProviderID *uuid.UUID `json:"previous_provider_id"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		w.logger.Error(err, "Failed to decode reassignment event")
		return
	}

	apt, err := w.appointments.Get(ctx, evt.AppointmentID)
	if err != nil {
		w.logger.Error(err, "Failed to load reassigned appointment",
			"appointment_id", evt.AppointmentID.String())
		return
	}
	to, err := w.providers.Get(ctx, evt.ProviderID)
	if err != nil {
		w.logger.Error(err, "Failed to load receiving provider",
			"provider_id", evt.ProviderID.String())
		return
	}
	from := to
	if evt.PreviousProviderID != nil {
		if prev, err := w.providers.Get(ctx, *evt.PreviousProviderID); err == nil {
			from = prev
		}
	}
	w.notifier.NotifyReassignment(ctx, apt, from, to)
}

func (w *NotificationWorker) handleDelay(ctx context.Context, raw []byte) {
	var evt struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
		ProviderID    uuid.UUID `json:"provider_id"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		w.logger.Error(err, "Failed to decode delay event")
		return
	}

	apt, err := w.appointments.Get(ctx, evt.AppointmentID)
	if err != nil {
		w.logger.Error(err, "Failed to load delayed appointment",
			"appointment_id", evt.AppointmentID.String())
		return
	}
	provider, err := w.providers.Get(ctx, evt.ProviderID)
	if err != nil {
		w.logger.Error(err, "Failed to load delayed appointment provider",
			"provider_id", evt.ProviderID.String())
		return
	}
	w.notifier.NotifyDelay(ctx, apt, provider)
}
