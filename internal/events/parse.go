package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"feishu-digest-bot/internal/models"
)

// MessageReceiveEventType is the only subscription this bot handles.
const MessageReceiveEventType = "im.message.receive_v1"

// Callback is the schema-2.0 event envelope delivered to the webhook,
// including the url_verification handshake fields.
type Callback struct {
	Challenge string `json:"challenge"`
	Type      string `json:"type"`
	Header    struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	} `json:"header"`
	Event struct {
		Message struct {
			MessageID   string `json:"message_id"`
			CreateTime  string `json:"create_time"` // epoch milliseconds
			ChatID      string `json:"chat_id"`
			ChatType    string `json:"chat_type"`
			MessageType string `json:"message_type"`
			Content     string `json:"content"`
			Mentions    []struct {
				Key  string `json:"key"`
				Name string `json:"name"`
				ID   struct {
					OpenID string `json:"open_id"`
				} `json:"id"`
			} `json:"mentions"`
		} `json:"message"`
	} `json:"event"`
}

// ParseCallback decodes the raw webhook body.
func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("failed to decode event callback: %w", err)
	}
	return &cb, nil
}

// IsChallenge reports whether the callback is the url_verification
// handshake rather than an event.
func (cb *Callback) IsChallenge() bool {
	return cb.Type == "url_verification"
}

// InboundEvent converts a message-receive callback into the internal event
// shape consumed by the admission filter.
func (cb *Callback) InboundEvent() (*models.InboundEvent, error) {
	msg := cb.Event.Message
	if msg.MessageID == "" {
		return nil, fmt.Errorf("event has no message")
	}

	lines, err := parseContent(msg.MessageType, msg.Content)
	if err != nil {
		return nil, err
	}

	ev := &models.InboundEvent{
		EventID:    msg.MessageID,
		ChatID:     msg.ChatID,
		ChatType:   msg.ChatType,
		Lines:      lines,
		OccurredAt: parseEpochMillis(msg.CreateTime),
	}
	for _, m := range msg.Mentions {
		ev.Mentions = append(ev.Mentions, models.Mention{
			Key:  m.Key,
			Name: m.Name,
			ID:   m.ID.OpenID,
		})
	}
	return ev, nil
}

// parseContent decodes the message content JSON into rich-text lines. Text
// messages become a single line with one text span; post messages carry
// tagged span lines natively.
func parseContent(messageType, content string) ([]models.MessageLine, error) {
	if content == "" {
		return nil, nil
	}

	switch messageType {
	case "post":
		var post struct {
			Content []models.MessageLine `json:"content"`
		}
		if err := json.Unmarshal([]byte(content), &post); err != nil {
			return nil, fmt.Errorf("failed to decode post content: %w", err)
		}
		return post.Content, nil
	default:
		var text struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(content), &text); err != nil {
			return nil, fmt.Errorf("failed to decode text content: %w", err)
		}
		return []models.MessageLine{{{Tag: "text", Text: text.Text}}}, nil
	}
}

// parseEpochMillis converts the platform's millisecond timestamp string; a
// malformed value yields the zero time, which the age check then rejects.
func parseEpochMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
