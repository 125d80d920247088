package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallbackChallenge(t *testing.T) {
	body := []byte(`{"challenge":"abc123","type":"url_verification","token":"t"}`)

	cb, err := ParseCallback(body)
	require.NoError(t, err)
	assert.True(t, cb.IsChallenge())
	assert.Equal(t, "abc123", cb.Challenge)
}

func TestParseCallbackMalformed(t *testing.T) {
	_, err := ParseCallback([]byte(`{not json`))
	assert.Error(t, err)
}

func TestInboundEventFromTextMessage(t *testing.T) {
	body := []byte(`{
		"header": {"event_id": "ev_1", "event_type": "im.message.receive_v1"},
		"event": {
			"message": {
				"message_id": "om_1",
				"create_time": "1756440000000",
				"chat_id": "oc_1",
				"chat_type": "group",
				"message_type": "text",
				"content": "{\"text\":\"@_user_1 what is new\"}",
				"mentions": [
					{"key": "@_user_1", "name": "digest-bot", "id": {"open_id": "ou_bot"}}
				]
			}
		}
	}`)

	cb, err := ParseCallback(body)
	require.NoError(t, err)
	assert.False(t, cb.IsChallenge())
	assert.Equal(t, MessageReceiveEventType, cb.Header.EventType)

	ev, err := cb.InboundEvent()
	require.NoError(t, err)
	assert.Equal(t, "om_1", ev.EventID)
	assert.Equal(t, "oc_1", ev.ChatID)
	assert.Equal(t, "group", ev.ChatType)
	assert.Equal(t, time.UnixMilli(1756440000000), ev.OccurredAt)
	assert.Equal(t, "@_user_1 what is new", ev.TextContent())

	require.Len(t, ev.Mentions, 1)
	assert.Equal(t, "@_user_1", ev.Mentions[0].Key)
	assert.Equal(t, "digest-bot", ev.Mentions[0].Name)
	assert.Equal(t, "ou_bot", ev.Mentions[0].ID)
}

func TestInboundEventFromPostMessage(t *testing.T) {
	body := []byte(`{
		"header": {"event_id": "ev_2"},
		"event": {
			"message": {
				"message_id": "om_2",
				"create_time": "1756440000000",
				"chat_id": "oc_1",
				"chat_type": "group",
				"message_type": "post",
				"content": "{\"title\":\"hi\",\"content\":[[{\"tag\":\"at\",\"user_id\":\"ou_bot\"},{\"tag\":\"text\",\"text\":\" hello \"}],[{\"tag\":\"img\",\"image_key\":\"img_x\"},{\"tag\":\"text\",\"text\":\"world\"}]]}"
			}
		}
	}`)

	cb, err := ParseCallback(body)
	require.NoError(t, err)

	ev, err := cb.InboundEvent()
	require.NoError(t, err)
	require.Len(t, ev.Lines, 2)
	// Only text spans contribute to the query text.
	assert.Equal(t, " hello world", ev.TextContent())
}

func TestInboundEventWithoutMessage(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"header": {"event_id": "ev_3"}}`))
	require.NoError(t, err)

	_, err = cb.InboundEvent()
	assert.Error(t, err)
}

func TestInboundEventBadCreateTime(t *testing.T) {
	body := []byte(`{
		"event": {
			"message": {
				"message_id": "om_4",
				"create_time": "not-a-number",
				"chat_id": "oc_1",
				"chat_type": "group",
				"message_type": "text",
				"content": "{\"text\":\"hi\"}"
			}
		}
	}`)

	cb, err := ParseCallback(body)
	require.NoError(t, err)

	ev, err := cb.InboundEvent()
	require.NoError(t, err)
	assert.True(t, ev.OccurredAt.IsZero())
}

func TestInboundEventBadPostContent(t *testing.T) {
	body := []byte(`{
		"event": {
			"message": {
				"message_id": "om_5",
				"create_time": "1756440000000",
				"message_type": "post",
				"content": "not json"
			}
		}
	}`)

	cb, err := ParseCallback(body)
	require.NoError(t, err)

	_, err = cb.InboundEvent()
	assert.Error(t, err)
}
