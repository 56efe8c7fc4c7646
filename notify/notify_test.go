package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/govhr/leave-engine/leave"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []leave.Notification
	err  error
	gate chan struct{}
}

func (s *recordingSink) Notify(_ context.Context, n leave.Notification) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type recordingMailer struct {
	to, subject, body string
}

func (m *recordingMailer) Send(_ context.Context, from, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func TestQueue_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, 8, nil)

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, q.Notify(context.Background(), leave.Notification{RequestID: id}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	require.Equal(t, 3, sink.count())
	assert.Equal(t, "r1", sink.got[0].RequestID)
	assert.Equal(t, "r3", sink.got[2].RequestID)
	assert.ErrorIs(t, q.Notify(context.Background(), leave.Notification{}), ErrQueueClosed)
}

func TestQueue_FullQueueDoesNotBlock(t *testing.T) {
	// GIVEN: a worker stuck on its first delivery and room for one more
	sink := &recordingSink{gate: make(chan struct{})}
	q := NewQueue(sink, 1, nil)

	require.NoError(t, q.Notify(context.Background(), leave.Notification{RequestID: "in-flight"}))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Notify(context.Background(), leave.Notification{RequestID: "buffered"}))

	// WHEN: another notification arrives
	err := q.Notify(context.Background(), leave.Notification{RequestID: "dropped"})

	// THEN: it is refused immediately
	assert.ErrorIs(t, err, ErrQueueFull)

	close(sink.gate)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestQueue_SinkErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{err: errors.New("mailbox unavailable")}
	q := NewQueue(sink, 4, zap.New(core))

	require.NoError(t, q.Notify(context.Background(), leave.Notification{Event: leave.EventRequestApproved}))
	require.NoError(t, q.Close(context.Background()))

	entries := logs.FilterMessage("notification delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "request_approved", entries[0].ContextMap()["event"])
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}

	err := Fanout{failing, ok}.Notify(context.Background(), leave.Notification{})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, ok.count())
}

func TestMailSink(t *testing.T) {
	mailer := &recordingMailer{}
	sink := MailSink{Mailer: mailer, From: "hr@example.gov"}

	err := sink.Notify(context.Background(), leave.Notification{
		Recipient: "emp-1", Name: "Ana Cruz", Email: "ana@example.gov",
		Event: leave.EventCreditsExpiring, Details: "5.000 days of Mandatory/Forced Leave expire on 2025-01-15",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.gov", mailer.to)
	assert.Equal(t, "Leave credits expiring soon", mailer.subject)
	assert.Contains(t, mailer.body, "Dear Ana Cruz")
	assert.Contains(t, mailer.body, "expire on 2025-01-15")

	*mailer = recordingMailer{}
	require.NoError(t, sink.Notify(context.Background(), leave.Notification{Recipient: "emp-2"}))
	assert.Empty(t, mailer.to, "no address, no mail")
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("a@x", "b@y", "Hi", "body"))
	assert.Contains(t, msg, "Subject: Hi\r\n")
	assert.True(t, len(msg) > 0 && msg[len(msg)-4:] == "body")
}
