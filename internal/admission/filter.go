package admission

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/ledger"
	"feishu-digest-bot/internal/models"
)

// RejectReason classifies why an event was not admitted.
type RejectReason string

const (
	ReasonTooOld       RejectReason = "too_old"
	ReasonDuplicate    RejectReason = "duplicate"
	ReasonNotGroup     RejectReason = "not_group"
	ReasonNotMentioned RejectReason = "not_mentioned"
	ReasonNotTargeted  RejectReason = "not_targeted"
	ReasonEmptyQuery   RejectReason = "empty_query"
)

// Decision is the terminal state of the admission filter for one event.
type Decision struct {
	Admitted bool
	Query    string
	Reason   RejectReason
}

// Filter decides whether an inbound event should be answered. Every
// rejection path except a pure duplicate commits the event id to the ledger
// so a redelivered copy is not re-evaluated. Admitted events are committed
// by the caller after the reply attempt.
type Filter struct {
	ledger  *ledger.Ledger
	botName string
	maxAge  time.Duration
	now     func() time.Time
}

// New creates an admission filter. maxAge bounds how old an event may be and
// still be answered.
func New(l *ledger.Ledger, botName string, maxAge time.Duration) *Filter {
	return &Filter{
		ledger:  l,
		botName: botName,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Decide runs the admission checks in order: age, duplicate, chat kind,
// mention presence, bot targeting, query extraction. The age check comes
// before the ledger lookup so stale events skip the membership scan.
func (f *Filter) Decide(ev *models.InboundEvent) Decision {
	age := f.now().Sub(ev.OccurredAt)
	if age > f.maxAge {
		logrus.Infof("Event %s is too old (%v > %v), ignoring", ev.EventID, age.Truncate(time.Second), f.maxAge)
		f.ledger.Record(ev.EventID)
		return Decision{Reason: ReasonTooOld}
	}

	if f.ledger.Contains(ev.EventID) {
		logrus.Infof("Event %s already processed, ignoring", ev.EventID)
		return Decision{Reason: ReasonDuplicate}
	}

	if ev.ChatType != "group" {
		logrus.Info("Not a group message, ignoring")
		f.ledger.Record(ev.EventID)
		return Decision{Reason: ReasonNotGroup}
	}

	text := ev.TextContent()
	nameInText := f.botName != "" && strings.Contains(text, f.botName)

	if len(ev.Mentions) == 0 && !nameInText {
		logrus.Info("No mentions in message, ignoring")
		f.ledger.Record(ev.EventID)
		return Decision{Reason: ReasonNotMentioned}
	}

	if !f.botTargeted(ev.Mentions, nameInText) {
		logrus.Info("Bot not mentioned in message, ignoring")
		f.ledger.Record(ev.EventID)
		return Decision{Reason: ReasonNotTargeted}
	}

	query := text
	for _, m := range ev.Mentions {
		if m.Key != "" {
			query = strings.ReplaceAll(query, m.Key, "")
		}
	}
	query = strings.TrimSpace(query)

	if query == "" {
		logrus.Info("Empty query after removing mentions, ignoring")
		f.ledger.Record(ev.EventID)
		return Decision{Reason: ReasonEmptyQuery}
	}

	return Decision{Admitted: true, Query: query}
}

// botTargeted reports whether the event addresses this bot: either a mention
// whose display name equals the configured bot name, or, when there are no
// mentions at all, the bot name already substring-matched in the text.
func (f *Filter) botTargeted(mentions []models.Mention, nameInText bool) bool {
	if len(mentions) == 0 {
		return nameInText
	}
	for _, m := range mentions {
		if m.Name == f.botName {
			return true
		}
	}
	return false
}
