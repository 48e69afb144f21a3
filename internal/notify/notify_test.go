package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"selco.dev/staffauth/internal/obs"
)

type published struct {
	topic string
	key   string
	msg   Message
}

type stubPublisher struct {
	mu     sync.Mutex
	sent   []published
	err    error
	block  chan struct{}
	closed bool
}

func (s *stubPublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	msg, _ := value.(Message)
	s.sent = append(s.sent, published{topic: topic, key: key, msg: msg})
	return 0, int64(len(s.sent)), nil
}

func (s *stubPublisher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubPublisher) messages() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]published, len(s.sent))
	copy(out, s.sent)
	return out
}

var testTopics = Topics{UserCreated: "user-created", EmailSend: "email-send", Connectivity: "connectivity"}

func TestDispatcherPublishesQueuedEvents(t *testing.T) {
	pub := &stubPublisher{}
	d := NewDispatcher(pub, testTopics)
	ctx := obs.WithRequestID(context.Background(), "req-42")

	require.NoError(t, d.AccountCreated(ctx, AccountCreated{AccountID: "acc-1", Email: "ana@empresa.com"}))
	email, err := LoginEmail("ana@empresa.com", "Ana", true, "10.0.0.1", time.Now())
	require.NoError(t, err)
	require.NoError(t, d.SendEmail(ctx, email))

	require.NoError(t, d.Close(context.Background()))
	require.True(t, pub.closed)

	sent := pub.messages()
	require.Len(t, sent, 2)
	require.Equal(t, "user-created", sent[0].topic)
	require.Equal(t, "ana@empresa.com", sent[0].key)
	require.Equal(t, EventAccountCreated, sent[0].msg.EventType)
	require.Equal(t, "req-42", sent[0].msg.RequestID)
	require.NotEmpty(t, sent[0].msg.EventID)
	require.Equal(t, "email-send", sent[1].topic)
	require.Equal(t, EventEmailToSend, sent[1].msg.EventType)
	require.NotEqual(t, sent[0].msg.EventID, sent[1].msg.EventID)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	pub := &stubPublisher{block: make(chan struct{})}
	d := NewDispatcher(pub, testTopics, WithQueueSize(1))

	// The worker takes the first event and blocks on it; the second fills the
	// queue; the third has nowhere to go.
	require.NoError(t, d.SendEmail(context.Background(), Email{Recipient: "a@x"}))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.SendEmail(context.Background(), Email{Recipient: "b@x"}))
	err := d.SendEmail(context.Background(), Email{Recipient: "c@x"})
	require.ErrorIs(t, err, ErrQueueFull)

	close(pub.block)
	require.NoError(t, d.Close(context.Background()))
	require.Len(t, pub.messages(), 2)
	require.ErrorIs(t, d.SendEmail(context.Background(), Email{}), ErrClosed)
}

func TestDispatcherSurvivesPublishErrors(t *testing.T) {
	pub := &stubPublisher{err: errors.New("broker unavailable")}
	d := NewDispatcher(pub, testTopics)

	require.NoError(t, d.AccountCreated(context.Background(), AccountCreated{Email: "ana@empresa.com"}))
	require.NoError(t, d.Close(context.Background()))
	require.Empty(t, pub.messages())
}

func TestDispatcherCloseHonorsContext(t *testing.T) {
	pub := &stubPublisher{block: make(chan struct{})}
	d := NewDispatcher(pub, testTopics)
	require.NoError(t, d.SendEmail(context.Background(), Email{Recipient: "a@x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(pub.block)
}

func TestDispatcherCheck(t *testing.T) {
	pub := &stubPublisher{}
	d := NewDispatcher(pub, testTopics)
	defer d.Close(context.Background())

	require.NoError(t, d.Check(context.Background()))
	sent := pub.messages()
	require.Len(t, sent, 1)
	require.Equal(t, "connectivity", sent[0].topic)
	require.Equal(t, EventConnectivity, sent[0].msg.EventType)

	pub.mu.Lock()
	pub.err = errors.New("no leader")
	pub.mu.Unlock()
	require.Error(t, d.Check(context.Background()))
}

func TestRegistrationEmail(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	email, err := RegistrationEmail("ana@empresa.com", "Ana Souza", "004211", "https://portal.example/login", now)
	require.NoError(t, err)
	require.Equal(t, EmailRegistration, email.EmailType)
	require.Equal(t, TemplateRegistration, email.TemplateID)
	require.Equal(t, "004211", email.TemporaryPassword)
	require.Equal(t, now, email.SentAt)
	require.True(t, strings.HasPrefix(email.Body, "Hello Ana Souza,"))
	require.Contains(t, email.Body, "Temporary password: 004211")
	require.Contains(t, email.Body, "https://portal.example/login")
}

func TestLoginEmail(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	ok, err := LoginEmail("ana@empresa.com", "Ana", true, "10.1.1.1", now)
	require.NoError(t, err)
	require.Equal(t, EmailLoginSuccess, ok.EmailType)
	require.Equal(t, TemplateLoginSuccess, ok.TemplateID)
	require.Contains(t, ok.Body, "Source IP: 10.1.1.1")
	require.Contains(t, ok.Body, "2025-06-02 09:00:00 UTC")
	require.Empty(t, ok.TemporaryPassword)

	fail, err := LoginEmail("ana@empresa.com", "Ana", false, "", now)
	require.NoError(t, err)
	require.Equal(t, EmailLoginFailure, fail.EmailType)
	require.Equal(t, TemplateLoginFailure, fail.TemplateID)
	require.Contains(t, fail.Body, "SECURITY ALERT")
	require.Contains(t, fail.Body, "Source IP: unknown")
}

func TestNewMessageRequiresType(t *testing.T) {
	_, err := NewMessage("", nil, "")
	require.Error(t, err)
}

func TestKafkaProducerPublishesEnvelope(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	reg := prometheus.NewRegistry()
	metrics := NewProducerMetrics(reg)
	p := newKafkaProducer(sp, nil, metrics)

	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var doc map[string]any
		if err := json.Unmarshal(val, &doc); err != nil {
			return err
		}
		if doc["event_type"] != EventAccountCreated {
			return errors.New("unexpected event_type")
		}
		payload, _ := doc["payload"].(map[string]any)
		if payload["email"] != "ana@empresa.com" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	msg, err := NewMessage(EventAccountCreated, AccountCreated{Email: "ana@empresa.com"}, "")
	require.NoError(t, err)
	_, _, err = p.PublishJSON(context.Background(), "user-created", "ana@empresa.com", msg)
	require.NoError(t, err)

	_, _, err = p.PublishJSON(context.Background(), "user-created", "ana@empresa.com", msg)
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("user-created", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("user-created", "error")))
	require.NoError(t, p.Close())
}

func TestKafkaProducerHonorsCanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := newKafkaProducer(sp, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.PublishJSON(ctx, "email-send", "k", Message{})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	_, err := NewKafkaProducer(nil, "staffauth", nil, nil)
	require.Error(t, err)
}
