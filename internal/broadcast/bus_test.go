package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/broadcast"
)

type published struct {
	topic   string
	payload []byte
}

type recordingBus struct {
	mu   sync.Mutex
	msgs []published
	fail map[string]bool
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{topic: topic, payload: payload})
	if b.fail[topic] {
		return errors.New("broker gone")
	}
	return nil
}

func TestBroadcaster_FansOutOncePerRecipient(t *testing.T) {
	bus := &recordingBus{}
	b := broadcast.NewBroadcaster(bus, zap.NewNop())
	therapist, driver := uuid.New(), uuid.New()
	ev := broadcast.Event{Type: "appointment.accepted", AppointmentID: uuid.New(), Status: "therapist_confirmed"}

	b.Announce(context.Background(), ev, therapist, driver, therapist, uuid.Nil)

	require.Len(t, bus.msgs, 3)
	assert.Equal(t, broadcast.TopicAll, bus.msgs[0].topic)
	assert.Equal(t, broadcast.UserTopic(therapist), bus.msgs[1].topic)
	assert.Equal(t, broadcast.UserTopic(driver), bus.msgs[2].topic)

	var got broadcast.Event
	require.NoError(t, json.Unmarshal(bus.msgs[0].payload, &got))
	assert.Equal(t, ev.AppointmentID, got.AppointmentID)
	assert.Equal(t, "therapist_confirmed", got.Status)
}

func TestBroadcaster_KeepsGoingAfterFailure(t *testing.T) {
	bus := &recordingBus{fail: map[string]bool{broadcast.TopicAll: true}}
	user := uuid.New()

	broadcast.NewBroadcaster(bus, zap.NewNop()).Announce(context.Background(), broadcast.Event{Type: "x"}, user)
	require.Len(t, bus.msgs, 2)
	assert.Equal(t, broadcast.UserTopic(user), bus.msgs[1].topic)

	var nilBroadcaster *broadcast.Broadcaster
	nilBroadcaster.Announce(context.Background(), broadcast.Event{})
}

func TestRedisBus_PublishesOnPrefixedChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := broadcast.NewRedisBus(rdb, "dispatch:")
	sub := rdb.Subscribe(ctx, bus.Channel(broadcast.TopicAll))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, broadcast.TopicAll, []byte(`{"type":"x"}`)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dispatch:appointments/all", msg.Channel)
	assert.JSONEq(t, `{"type":"x"}`, msg.Payload)

	mr.Close()
	assert.Error(t, bus.Publish(ctx, broadcast.TopicAll, []byte("{}")))
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

// fakeMQTT implements only what MQTTBus calls.
type fakeMQTT struct {
	mqtt.Client
	token  mqtt.Token
	topics []string
	qos    []byte
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, _ interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.qos = append(c.qos, qos)
	return c.token
}

func TestMQTTBus_Publish(t *testing.T) {
	client := &fakeMQTT{token: doneToken(nil)}
	bus := broadcast.NewMQTTBusWithClient(client, 1)

	require.NoError(t, bus.Publish(context.Background(), "appointments/all", []byte("{}")))
	assert.Equal(t, []string{"appointments/all"}, client.topics)
	assert.Equal(t, []byte{1}, client.qos)

	client.token = doneToken(errors.New("not connected"))
	assert.ErrorContains(t, bus.Publish(context.Background(), "t", nil), "not connected")
}

func TestMQTTBus_PublishRespectsContext(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{done: make(chan struct{})}}
	bus := broadcast.NewMQTTBusWithClient(client, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, "t", nil), context.Canceled)
}
