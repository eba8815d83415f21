package eventbus

import (
	"context"
	"hash/fnv"
	"sync"
)

// MemoryBus is an in-process Bus. Topics are partitioned by message key;
// each partition is an append-only log, so delivery order within a partition
// matches publish order and consumers attaching after a publish still see
// every retained message. Consumer groups track committed offsets per
// partition; an uncommitted message is delivered again after a resubscribe.
type MemoryBus struct {
	partitions int

	mu     sync.Mutex
	topics map[string]*memoryTopic
	closed bool
}

type memoryTopic struct {
	mu     sync.Mutex
	parts  [][]Message
	groups map[string][]int64 // committed next-offset per partition
	notify chan struct{}      // closed and replaced on every publish
	closed bool
}

// NewMemoryBus creates an in-process bus with the given partition count per
// topic. Partition count must be at least 1.
func NewMemoryBus(partitions int) *MemoryBus {
	if partitions < 1 {
		partitions = 1
	}
	return &MemoryBus{
		partitions: partitions,
		topics:     make(map[string]*memoryTopic),
	}
}

func (b *MemoryBus) topic(name string) (*memoryTopic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	t, ok := b.topics[name]
	if !ok {
		t = &memoryTopic{
			parts:  make([][]Message, b.partitions),
			groups: make(map[string][]int64),
			notify: make(chan struct{}),
		}
		b.topics[name] = t
	}
	return t, nil
}

// Publish appends the message to the partition selected by key and returns
// immediately. The acknowledgment with partition and offset is already
// buffered on the returned channel.
func (b *MemoryBus) Publish(_ context.Context, topic, key string, value []byte) (<-chan Ack, error) {
	t, err := b.topic(topic)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}

	p := partitionFor(key, len(t.parts))
	offset := int64(len(t.parts[p]))
	t.parts[p] = append(t.parts[p], Message{
		Topic:     topic,
		Partition: p,
		Offset:    offset,
		Key:       key,
		Value:     value,
	})

	close(t.notify)
	t.notify = make(chan struct{})
	t.mu.Unlock()

	ack := make(chan Ack, 1)
	ack <- Ack{Partition: p, Offset: offset}
	return ack, nil
}

// Subscribe attaches a consumer to the topic for the given group. Delivery
// resumes from the group's committed offsets, so a fresh group sees the full
// retained log.
func (b *MemoryBus) Subscribe(topic, group string) (Consumer, error) {
	t, err := b.topic(topic)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.groups[group]; !ok {
		t.groups[group] = make([]int64, len(t.parts))
	}

	next := make([]int64, len(t.parts))
	copy(next, t.groups[group])

	return &memoryConsumer{topic: t, group: group, next: next}, nil
}

// Close shuts the bus down. Blocked consumers return ErrClosed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	topics := make([]*memoryTopic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.closed = true
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		if !t.closed {
			t.closed = true
			close(t.notify)
			t.notify = make(chan struct{})
		}
		t.mu.Unlock()
	}
}

type memoryConsumer struct {
	topic *memoryTopic
	group string
	next  []int64 // per-partition delivery position for this session
	rr    int
	mu    sync.Mutex

	closed bool
}

// Next delivers the next available message, scanning partitions round-robin
// so one busy partition cannot starve the others.
func (c *memoryConsumer) Next(ctx context.Context) (Message, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Message{}, ErrClosed
		}

		c.topic.mu.Lock()
		if c.topic.closed {
			c.topic.mu.Unlock()
			c.mu.Unlock()
			return Message{}, ErrClosed
		}

		for i := 0; i < len(c.topic.parts); i++ {
			p := (c.rr + i) % len(c.topic.parts)
			if c.next[p] < int64(len(c.topic.parts[p])) {
				msg := c.topic.parts[p][c.next[p]]
				c.next[p]++
				c.rr = (p + 1) % len(c.topic.parts)
				c.topic.mu.Unlock()
				c.mu.Unlock()
				return msg, nil
			}
		}

		notify := c.topic.notify
		c.topic.mu.Unlock()
		c.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Commit advances the group's committed offset for the message's partition.
func (c *memoryConsumer) Commit(_ context.Context, msg Message) error {
	c.topic.mu.Lock()
	defer c.topic.mu.Unlock()

	committed := c.topic.groups[c.group]
	if msg.Partition < 0 || msg.Partition >= len(committed) {
		return ErrUnknownTopic
	}
	if msg.Offset+1 > committed[msg.Partition] {
		committed[msg.Partition] = msg.Offset + 1
	}
	return nil
}

func (c *memoryConsumer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func partitionFor(key string, partitions int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
