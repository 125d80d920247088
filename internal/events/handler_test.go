package events

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feishu-digest-bot/internal/admission"
	"feishu-digest-bot/internal/ledger"
	"feishu-digest-bot/internal/metrics"
	"feishu-digest-bot/internal/models"
)

type fakeLLM struct {
	answer  string
	err     error
	queries []string
}

func (f *fakeLLM) Answer(ctx context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.answer, f.err
}

type fakeReplier struct {
	err     error
	replies []string
}

func (f *fakeReplier) Reply(ctx context.Context, messageID, text string) error {
	f.replies = append(f.replies, messageID+":"+text)
	return f.err
}

type fakeDeliveryLog struct {
	entries []string
}

func (f *fakeDeliveryLog) LogDelivery(kind, targetID, status, errMsg string) error {
	f.entries = append(f.entries, kind+"/"+targetID+"/"+status)
	return nil
}

func newTestHandler(t *testing.T, llm *fakeLLM, replier *fakeReplier, recorder DeliveryRecorder) (*Handler, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(filepath.Join(t.TempDir(), "processed.log"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	filter := admission.New(l, "digest-bot", 5*time.Minute)
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	return NewHandler(filter, l, llm, replier, recorder, m), l
}

func mentionEvent(id string) *models.InboundEvent {
	return &models.InboundEvent{
		EventID:  id,
		ChatID:   "oc_1",
		ChatType: "group",
		Lines: []models.MessageLine{
			{{Tag: "text", Text: "@_user_1 what happened this week"}},
		},
		Mentions:   []models.Mention{{Key: "@_user_1", Name: "digest-bot", ID: "ou_bot"}},
		OccurredAt: time.Now(),
	}
}

func TestHandleRepliesAndCommits(t *testing.T) {
	llm := &fakeLLM{answer: "here is the news"}
	replier := &fakeReplier{}
	recorder := &fakeDeliveryLog{}
	h, l := newTestHandler(t, llm, replier, recorder)

	h.Handle(context.Background(), mentionEvent("om_1"))

	assert.Equal(t, []string{"what happened this week"}, llm.queries)
	assert.Equal(t, []string{"om_1:here is the news"}, replier.replies)
	assert.Equal(t, []string{"reply/om_1/success"}, recorder.entries)
	assert.True(t, l.Contains("om_1"))
}

func TestHandleRejectedEventSkipsLLM(t *testing.T) {
	llm := &fakeLLM{answer: "unused"}
	replier := &fakeReplier{}
	h, _ := newTestHandler(t, llm, replier, nil)

	ev := mentionEvent("om_2")
	ev.ChatType = "p2p"
	h.Handle(context.Background(), ev)

	assert.Empty(t, llm.queries)
	assert.Empty(t, replier.replies)
}

func TestHandleDuplicateProcessedOnce(t *testing.T) {
	llm := &fakeLLM{answer: "answer"}
	replier := &fakeReplier{}
	h, _ := newTestHandler(t, llm, replier, nil)

	h.Handle(context.Background(), mentionEvent("om_3"))
	h.Handle(context.Background(), mentionEvent("om_3"))

	assert.Len(t, replier.replies, 1)
	assert.Len(t, llm.queries, 1)
}

func TestHandleLLMFailureLeavesEventUncommitted(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model overloaded")}
	replier := &fakeReplier{}
	h, l := newTestHandler(t, llm, replier, nil)

	h.Handle(context.Background(), mentionEvent("om_4"))

	assert.Empty(t, replier.replies)
	// A redelivery of the same event gets another chance.
	assert.False(t, l.Contains("om_4"))

	llm.err = nil
	llm.answer = "recovered"
	h.Handle(context.Background(), mentionEvent("om_4"))
	assert.Equal(t, []string{"om_4:recovered"}, replier.replies)
	assert.True(t, l.Contains("om_4"))
}

func TestHandleReplyFailureStillCommits(t *testing.T) {
	llm := &fakeLLM{answer: "answer"}
	replier := &fakeReplier{err: errors.New("message gone")}
	recorder := &fakeDeliveryLog{}
	h, l := newTestHandler(t, llm, replier, recorder)

	h.Handle(context.Background(), mentionEvent("om_5"))

	assert.True(t, l.Contains("om_5"), "a failed reply is dropped, not retried")
	assert.Equal(t, []string{"reply/om_5/failure"}, recorder.entries)

	// The duplicate check now rejects a redelivery before the LLM runs.
	h.Handle(context.Background(), mentionEvent("om_5"))
	assert.Len(t, llm.queries, 1)
}
