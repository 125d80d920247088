package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/admission"
	"feishu-digest-bot/internal/ledger"
	"feishu-digest-bot/internal/metrics"
	"feishu-digest-bot/internal/models"
)

// AnswerGenerator produces a reply text for an admitted query.
type AnswerGenerator interface {
	Answer(ctx context.Context, query string) (string, error)
}

// Replier sends the generated answer back to the originating message.
type Replier interface {
	Reply(ctx context.Context, messageID, text string) error
}

// DeliveryRecorder persists the outcome of one reply attempt.
type DeliveryRecorder interface {
	LogDelivery(kind, targetID, status, errMsg string) error
}

// Handler processes inbound message events to completion, one at a time:
// admission, answer generation, reply, ledger commit. Errors are logged and
// absorbed; the event loop never crashes and nothing is retried.
type Handler struct {
	filter   *admission.Filter
	ledger   *ledger.Ledger
	llm      AnswerGenerator
	replier  Replier
	recorder DeliveryRecorder
	metrics  *metrics.Metrics
}

// NewHandler creates an event handler. recorder may be nil when no delivery
// log database is configured.
func NewHandler(filter *admission.Filter, l *ledger.Ledger, llm AnswerGenerator, replier Replier, recorder DeliveryRecorder, m *metrics.Metrics) *Handler {
	return &Handler{
		filter:   filter,
		ledger:   l,
		llm:      llm,
		replier:  replier,
		recorder: recorder,
		metrics:  m,
	}
}

// Handle runs one event through the pipeline. The event id is committed
// after the reply attempt whether or not the reply succeeded; a failed
// reply is dropped, not retried.
func (h *Handler) Handle(ctx context.Context, ev *models.InboundEvent) {
	start := time.Now()
	h.metrics.EventsReceived.Inc()
	defer func() {
		h.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	}()

	decision := h.filter.Decide(ev)
	if !decision.Admitted {
		h.metrics.EventsRejected.WithLabelValues(string(decision.Reason)).Inc()
		return
	}
	h.metrics.EventsAdmitted.Inc()

	logrus.Infof("Processing query from event %s: %s", ev.EventID, decision.Query)

	answer, err := h.llm.Answer(ctx, decision.Query)
	if err != nil {
		// No reply attempt happened, so the id stays uncommitted and a
		// redelivery gets another chance.
		logrus.Errorf("Failed to generate answer for event %s: %v", ev.EventID, err)
		return
	}

	if err := h.replier.Reply(ctx, ev.EventID, answer); err != nil {
		logrus.Errorf("Failed to reply to event %s: %v", ev.EventID, err)
		h.metrics.ReplyFailures.Inc()
		h.logDelivery(ev.EventID, "failure", err.Error())
	} else {
		logrus.Infof("Reply sent for event %s", ev.EventID)
		h.metrics.ReplySuccesses.Inc()
		h.logDelivery(ev.EventID, "success", "")
	}

	h.ledger.Record(ev.EventID)
}

func (h *Handler) logDelivery(eventID, status, errMsg string) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.LogDelivery("reply", eventID, status, errMsg); err != nil {
		logrus.Errorf("Failed to log reply delivery: %v", err)
	}
}
