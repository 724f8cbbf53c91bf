package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/messaging"
)

const (
	channelSchedule = "schedule-events"

	channelEmail    = "email"
	channelWhatsApp = "whatsapp"
)

// Service notifies the people affected by an engine decision. Delivery is
// best effort: a notification that cannot be sent is logged and dropped,
// the assignment it describes has already been committed.
type Service interface {
	NotifyReassignment(ctx context.Context, apt *model.Appointment, from, to *model.Provider)
	NotifyDelay(ctx context.Context, apt *model.Appointment, provider *model.Provider)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type service struct {
	dialer *gomail.Dialer
	from   string
	broker messaging.Broker
	logger *logger.Logger
}

func NewService(cfg SMTPConfig, broker messaging.Broker, log *logger.Logger) Service {
	var dialer *gomail.Dialer
	if cfg.Host != "" {
		dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return &service{
		dialer: dialer,
		from:   cfg.From,
		broker: broker,
		logger: log,
	}
}

func (s *service) NotifyReassignment(ctx context.Context, apt *model.Appointment, from, to *model.Provider) {
	subject := "Appointment update"
	body := fmt.Sprintf(
		"Your %s appointment at %s has been moved to %s to avoid a longer wait.",
		apt.TreatmentName, apt.EffectiveStart().Format("15:04"), to.Name,
	)
	s.sendEmail(to.Email, subject, fmt.Sprintf("You have been assigned the %s appointment at %s (previously with %s).",
		apt.TreatmentName, apt.EffectiveStart().Format("15:04"), from.Name))
	s.publish(ctx, messaging.Message{
		Type: model.AuditEventReassign,
		Payload: model.JSONMap{
			"appointment_id":       apt.ID,
			"provider_id":          to.ID,
			"previous_provider_id": from.ID,
			"channel":              channelFor(to),
			"message":              body,
		},
	})
}

func (s *service) NotifyDelay(ctx context.Context, apt *model.Appointment, provider *model.Provider) {
	body := fmt.Sprintf(
		"Your %s appointment is running about %d minutes late. New estimated start: %s.",
		apt.TreatmentName, apt.DelayMinutes, apt.EffectiveStart().Format("15:04"),
	)
	s.sendEmail(provider.Email, "Schedule running late", body)
	s.publish(ctx, messaging.Message{
		Type: model.AuditEventDelayDetect,
		Payload: model.JSONMap{
			"appointment_id": apt.ID,
			"provider_id":    provider.ID,
			"delay_minutes":  apt.DelayMinutes,
			"channel":        channelFor(provider),
			"message":        body,
		},
	})
}

func (s *service) sendEmail(to, subject, body string) {
	if s.dialer == nil || to == "" {
		return
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.ZL.Error().Err(err).Str("to", to).Msg("failed to send notification email")
	}
}

func (s *service) publish(ctx context.Context, msg messaging.Message) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, channelSchedule, msg); err != nil {
		s.logger.ZL.Error().Err(err).Str("type", msg.Type).Msg("failed to publish schedule event")
	}
}

// channelFor prefers WhatsApp when the provider registered a number; the
// delivery worker reads this hint off the published event.
func channelFor(p *model.Provider) string {
	if p.WhatsApp != "" {
		return channelWhatsApp
	}
	return channelEmail
}
