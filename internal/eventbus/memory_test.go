package eventbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishAndWait(t *testing.T, bus *MemoryBus, topic, key string, value []byte) Ack {
	t.Helper()

	ackCh, err := bus.Publish(context.Background(), topic, key, value)
	require.NoError(t, err)

	select {
	case ack := <-ackCh:
		return ack
	case <-time.After(time.Second):
		t.Fatal("no ack received")
		return Ack{}
	}
}

func TestMemoryBus_PublishAck(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	ack := publishAndWait(t, bus, "incident-created", "ev-1", []byte("a"))
	assert.NoError(t, ack.Err)
	assert.GreaterOrEqual(t, ack.Partition, 0)
	assert.Less(t, ack.Partition, 4)
	assert.Equal(t, int64(0), ack.Offset)

	// Same key lands on the same partition with the next offset.
	ack2 := publishAndWait(t, bus, "incident-created", "ev-1", []byte("b"))
	assert.Equal(t, ack.Partition, ack2.Partition)
	assert.Equal(t, int64(1), ack2.Offset)
}

func TestMemoryBus_OrderWithinPartition(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	for i := 0; i < 10; i++ {
		publishAndWait(t, bus, "t", fmt.Sprintf("key-%d", i), []byte{byte(i)})
	}

	consumer, err := bus.Subscribe("t", "g")
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		msg, err := consumer.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, msg.Value)
		require.NoError(t, consumer.Commit(ctx, msg))
	}
}

func TestMemoryBus_LateConsumerSeesAllMessages(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	const n = 25
	for i := 0; i < n; i++ {
		publishAndWait(t, bus, "t", fmt.Sprintf("key-%d", i), []byte{byte(i)})
	}

	// Consumer comes online only after all publishes.
	consumer, err := bus.Subscribe("t", "g")
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seen := make(map[byte]bool)
	for i := 0; i < n; i++ {
		msg, err := consumer.Next(ctx)
		require.NoError(t, err)
		seen[msg.Value[0]] = true
		require.NoError(t, consumer.Commit(ctx, msg))
	}
	assert.Len(t, seen, n)
}

func TestMemoryBus_RedeliveryWithoutCommit(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	publishAndWait(t, bus, "t", "k", []byte("payload"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := bus.Subscribe("t", "g")
	require.NoError(t, err)

	msg, err := first.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), msg.Value)
	// No commit: the consumer dies before acknowledging.
	require.NoError(t, first.Close())

	second, err := bus.Subscribe("t", "g")
	require.NoError(t, err)
	defer second.Close()

	again, err := second.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.Offset, again.Offset)
	assert.Equal(t, []byte("payload"), again.Value)

	require.NoError(t, second.Commit(ctx, again))

	// After commit a fresh session starts past the message.
	third, err := bus.Subscribe("t", "g")
	require.NoError(t, err)
	defer third.Close()

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	_, err = third.Next(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryBus_IndependentGroups(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	publishAndWait(t, bus, "t", "k", []byte("x"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	a, err := bus.Subscribe("t", "group-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := bus.Subscribe("t", "group-b")
	require.NoError(t, err)
	defer b.Close()

	msgA, err := a.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Commit(ctx, msgA))

	// Group B's position is unaffected by group A's commit.
	msgB, err := b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, msgA.Offset, msgB.Offset)
}

func TestMemoryBus_NextBlocksUntilPublish(t *testing.T) {
	bus := NewMemoryBus(2)
	defer bus.Close()

	consumer, err := bus.Subscribe("t", "g")
	require.NoError(t, err)
	defer consumer.Close()

	got := make(chan Message, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg, err := consumer.Next(ctx)
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	publishAndWait(t, bus, "t", "k", []byte("late"))

	select {
	case msg := <-got:
		assert.Equal(t, []byte("late"), msg.Value)
	case <-time.After(time.Second):
		t.Fatal("blocked consumer did not receive published message")
	}
}

func TestMemoryBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := NewMemoryBus(1)
	bus.Close()

	_, err := bus.Publish(context.Background(), "t", "k", []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}
