// Package bus is the in-process message fabric the node's services
// talk over: topic pub/sub with MQTT-style wildcards, retained
// messages, and request/reply on top.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed reports a reply channel that went away before an answer.
var ErrClosed = errors.New("bus: subscription closed")

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is an ordered path of comparable tokens, usually strings and
// ints. In subscription patterns, "+" matches exactly one level and a
// trailing "#" matches the rest, including none.
type Topic []any

func (t Topic) Len() int     { return len(t) }
func (t Topic) At(i int) any { return t[i] }

// T builds a Topic and rejects tokens that cannot back a pattern
// match. Non-comparable tokens (slices, maps, funcs) panic here rather
// than later inside Publish.
func T(parts ...any) Topic {
	for _, p := range parts {
		if !comparableToken(p) {
			panic("bus: topic token must be comparable")
		}
	}
	return Topic(parts)
}

func comparableToken(v any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = v == v
	return true
}

func topicsEqual(a, b Topic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// matchPattern reports whether a concrete topic falls under a pattern.
// "#" is only meaningful as the final token and also matches the
// pattern's own parent level.
func matchPattern(pat, topic Topic) bool {
	ti := 0
	for pi := 0; pi < len(pat); pi++ {
		tok := pat[pi]
		if tok == "#" {
			return pi == len(pat)-1
		}
		if ti >= len(topic) {
			return false
		}
		if tok != "+" && tok != topic[ti] {
			return false
		}
		ti++
	}
	return ti == len(topic)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	subs     []*Subscription
	retained []*Message
	qLen     int

	replySeq atomic.Uint32
}

// NewBus creates a bus whose subscription channels buffer queueLen
// messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{qLen: queueLen}
}

// NewMessage builds a message bound for this bus.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers a message to every matching subscription, and
// stores or clears the retained copy when asked to.
func (b *Bus) Publish(msg *Message) {
	if msg == nil || len(msg.Topic) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		b.storeRetained(msg)
	}
	for _, sub := range b.subs {
		if matchPattern(sub.topic, msg.Topic) {
			deliver(sub, msg)
		}
	}
}

// caller holds b.mu
func (b *Bus) storeRetained(msg *Message) {
	for i, r := range b.retained {
		if topicsEqual(r.Topic, msg.Topic) {
			if msg.Payload == nil {
				b.retained = append(b.retained[:i], b.retained[i+1:]...)
			} else {
				b.retained[i] = msg
			}
			return
		}
	}
	if msg.Payload != nil {
		b.retained = append(b.retained, msg)
	}
}

// caller holds b.mu
func (b *Bus) addSubscription(sub *Subscription) {
	b.subs = append(b.subs, sub)
	for _, r := range b.retained {
		if matchPattern(sub.topic, r.Topic) {
			deliver(sub, r)
		}
	}
}

// caller holds b.mu
func (b *Bus) removeSubscription(sub *Subscription) {
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// deliver never blocks: a full queue sheds its oldest message first.
// The drop is skipped when a concurrent reader has already made room.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- msg:
	default:
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	id   string
}

// NewConnection creates a named connection bound to this bus. The name
// shows up in reply topics, which helps when reading traces.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// NewMessage builds a message bound for this connection's bus.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a pattern owned by this connection. Retained
// messages under the pattern arrive immediately.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.mu.Lock()
	c.bus.addSubscription(sub)
	c.bus.mu.Unlock()

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.mu.Lock()
	c.bus.removeSubscription(sub)
	c.bus.mu.Unlock()

	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	c.bus.mu.Lock()
	for _, sub := range subs {
		c.bus.removeSubscription(sub)
	}
	c.bus.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request / reply
// -----------------------------------------------------------------------------

func (c *Connection) newReplyTopic() Topic {
	seq := c.bus.replySeq.Add(1)
	return Topic{"$reply", c.id, int(seq)}
}

// Request stamps the message with a fresh ReplyTo, subscribes to it,
// and publishes. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	if len(msg.ReplyTo) == 0 {
		msg.ReplyTo = c.newReplyTopic()
	}
	sub := c.Subscribe(msg.ReplyTo)
	c.bus.Publish(msg)
	return sub
}

// RequestWait performs Request and blocks for the first reply or the
// end of ctx.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case reply, ok := <-sub.ch:
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers a request on its ReplyTo topic. Requests that carry no
// ReplyTo are fire-and-forget and the reply is silently dropped.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
