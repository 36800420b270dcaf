package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingIngester struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingIngester) Ingest(_ context.Context, e models.Event) models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return e
}

func TestDecodeEvent(t *testing.T) {
	e, err := DecodeEvent([]byte(`{"source":"metrics","type":"metric.collected","data":{"cpu_percent":91.5,"tenant_id":"acme"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.SourceMetrics, e.Source)
	assert.Equal(t, models.SeverityNormal, e.Severity)
	assert.False(t, e.Timestamp.IsZero())
	v, ok := e.Data.Float("cpu_percent")
	require.True(t, ok)
	assert.Equal(t, 91.5, v)
	assert.Equal(t, "acme", e.TenantID())

	e, err = DecodeEvent([]byte(`{"source":"process","type":"process.crashed","severity":"urgent","timestamp":"2025-03-10T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, models.SeverityUrgent, e.Severity)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), e.Timestamp)
	assert.NotNil(t, e.Data)

	for _, raw := range []string{
		`not json`,
		`{"type":"metric.collected"}`,
		`{"source":"metrics"}`,
		`{"source":"metrics","type":"x","severity":"critical"}`,
	} {
		_, err := DecodeEvent([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidEvent, raw)
	}
}

func TestConsumer_Run(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- kafka.Message{Offset: 1, Value: []byte(`{"source":"metrics","type":"metric.collected","data":{"cpu_percent":50}}`)}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte(`{"broken":`)}
	reader.msgs <- kafka.Message{Offset: 3, Value: []byte(`{"source":"security","type":"security.brute_force"}`)}

	ingester := &recordingIngester{}
	c := NewConsumerWithReader(reader, ingester, logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return len(reader.committed) == 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	ingester.mu.Lock()
	defer ingester.mu.Unlock()
	require.Len(t, ingester.events, 2)
	assert.Equal(t, models.EventMetricCollected, ingester.events[0].Type)
	assert.Equal(t, models.EventSecurityBruteForce, ingester.events[1].Type)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

func TestConsumer_RunRetriesReadErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := &erroringReader{fetch: func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("broker unavailable")
	}}
	c := NewConsumerWithReader(r, &recordingIngester{}, logging.NewDiscard())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, 2, calls)
}

type erroringReader struct {
	fetch func() error
}

func (r *erroringReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, r.fetch()
}
func (r *erroringReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (r *erroringReader) Close() error { return nil }
