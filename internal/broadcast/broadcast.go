// Package broadcast implements the Broadcast Fabric (C12): a websocket
// publish layer with per-channel last-payload replay for late subscribers
// and per-subscriber bounded delivery so one slow client never backs up
// the rest.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// MessageType is the closed set of frames the fabric sends and accepts.
type MessageType string

const (
	MsgHandshake  MessageType = "HANDSHAKE"
	MsgSubscribed MessageType = "SUBSCRIBED"
	MsgData       MessageType = "DATA"
	MsgSnapshot   MessageType = "SNAPSHOT"
)

// ClientMessageType is the closed set of frames a client may send.
type ClientMessageType string

const (
	ClientSubscribe   ClientMessageType = "SUBSCRIBE"
	ClientUnsubscribe ClientMessageType = "UNSUBSCRIBE"
	ClientResync      ClientMessageType = "RESYNC"
	ClientPing        ClientMessageType = "PING"
)

// Message is the server -> client wire envelope.
type Message struct {
	Type    MessageType `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Seq     uint64      `json:"seq,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientMessage is the client -> server wire envelope. SUBSCRIBE and
// UNSUBSCRIBE carry one or more channel names; RESYNC carries only FromSeq,
// against every channel the subscriber is currently subscribed to.
type ClientMessage struct {
	Type     ClientMessageType `json:"type"`
	Channels []string          `json:"channels,omitempty"`
	FromSeq  uint64            `json:"from_seq,omitempty"`
}

const subscriberBufferSize = 64

type subscriber struct {
	id       string
	outbound chan Message
	channels map[string]bool
	mu       sync.Mutex
}

func (s *subscriber) subscribedTo(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}

func (s *subscriber) setSubscribed(channel string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.channels[channel] = true
	} else {
		delete(s.channels, channel)
	}
}

// subscribedChannels returns a snapshot of the channels s currently follows,
// used by RESYNC (which carries no channel of its own) to know what to
// resend.
func (s *subscriber) subscribedChannels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	return out
}

// Fabric is the in-process hub: it owns the subscriber set, the global
// sequence counter, and the per-channel last-payload cache.
type Fabric struct {
	seq atomic.Uint64

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	lastPayload map[string]Message

	log zerolog.Logger
}

// New builds an empty Fabric.
func New(log zerolog.Logger) *Fabric {
	return &Fabric{
		subscribers: make(map[string]*subscriber),
		lastPayload: make(map[string]Message),
		log:         log.With().Str("component", "broadcast").Logger(),
	}
}

// Broadcast publishes payload to every subscriber of channel, stamping it
// with the next global sequence number. Broadcast is the fabric's single
// writer of seq, so it is safe as an atomic counter rather than a mutex.
func (f *Fabric) Broadcast(channel string, payload interface{}) {
	msg := Message{Type: MsgData, Channel: channel, Seq: f.seq.Add(1), Payload: payload}

	f.mu.Lock()
	f.lastPayload[channel] = msg
	subs := make([]*subscriber, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		if s.subscribedTo(channel) {
			subs = append(subs, s)
		}
	}
	f.mu.Unlock()

	for _, s := range subs {
		f.deliver(s, msg)
	}
}

// deliver drops the message and disconnects the subscriber if its outbound
// buffer is full, isolating one slow client from the rest of the fabric.
func (f *Fabric) deliver(s *subscriber, msg Message) {
	select {
	case s.outbound <- msg:
	default:
		f.log.Warn().Str("subscriber", s.id).Str("channel", msg.Channel).Msg("outbound buffer full, dropping subscriber")
		f.removeSubscriber(s.id)
		close(s.outbound)
	}
}

func (f *Fabric) addSubscriber(id string) *subscriber {
	s := &subscriber{id: id, outbound: make(chan Message, subscriberBufferSize), channels: make(map[string]bool)}
	f.mu.Lock()
	f.subscribers[id] = s
	f.mu.Unlock()
	return s
}

func (f *Fabric) removeSubscriber(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, id)
}

// subscribe marks s subscribed to channel and returns the immediate
// last-cached payload for replay, if any exists.
func (f *Fabric) subscribe(s *subscriber, channel string) (Message, bool) {
	s.setSubscribed(channel, true)
	f.mu.RLock()
	defer f.mu.RUnlock()
	last, ok := f.lastPayload[channel]
	return last, ok
}

// Serve runs the subscriber lifecycle of an already-accepted websocket
// connection until the connection closes or ctx is cancelled.
func (f *Fabric) Serve(ctx context.Context, conn *websocket.Conn, id string) {
	sub := f.addSubscriber(id)
	defer f.removeSubscriber(id)

	writerDone := make(chan struct{})
	go f.writeLoop(ctx, conn, sub, writerDone)

	f.readLoop(ctx, conn, sub)
	<-writerDone
}

func (f *Fabric) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.outbound:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber outbound buffer overflowed")
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (f *Fabric) readLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cm ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			f.log.Warn().Err(err).Msg("unparsable client message")
			continue
		}
		f.handleClientMessage(sub, cm)
	}
}

func (f *Fabric) handleClientMessage(sub *subscriber, cm ClientMessage) {
	switch cm.Type {
	case ClientSubscribe:
		for _, channel := range cm.Channels {
			last, ok := f.subscribe(sub, channel)
			ack := Message{Type: MsgSubscribed, Channel: channel, Seq: f.seq.Load()}
			f.deliver(sub, ack)
			if ok {
				snap := last
				snap.Type = MsgSnapshot
				f.deliver(sub, snap)
			}
		}
	case ClientUnsubscribe:
		for _, channel := range cm.Channels {
			sub.setSubscribed(channel, false)
		}
	case ClientResync:
		// RESYNC names no channel of its own; resend a SNAPSHOT for every
		// channel the subscriber currently follows whose last payload is at
		// or ahead of FromSeq.
		for _, channel := range sub.subscribedChannels() {
			f.mu.RLock()
			last, ok := f.lastPayload[channel]
			f.mu.RUnlock()
			if ok && last.Seq >= cm.FromSeq {
				snap := last
				snap.Type = MsgSnapshot
				f.deliver(sub, snap)
			}
		}
	case ClientPing:
		// no-op keepalive
	default:
		f.log.Warn().Str("type", string(cm.Type)).Msg("unknown client message type, ignored")
	}
}
