package broadcast

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBroadcastSeqIsMonotonicAndNeverReused(t *testing.T) {
	f := New(zerolog.Nop())
	sub := f.addSubscriber("s1")
	sub.setSubscribed("positions", true)

	f.Broadcast("positions", map[string]string{"symbol": "AAPL"})
	f.Broadcast("positions", map[string]string{"symbol": "MSFT"})

	m1 := <-sub.outbound
	m2 := <-sub.outbound
	require.Less(t, m1.Seq, m2.Seq)
}

func TestLateSubscriberReplaysLastPayload(t *testing.T) {
	f := New(zerolog.Nop())
	f.Broadcast("regime", map[string]string{"trend": "choppy"})

	sub := f.addSubscriber("late")
	last, ok := f.subscribe(sub, "regime")
	require.True(t, ok)
	require.Equal(t, "regime", last.Channel)
}

func TestOverflowingSubscriberIsDisconnected(t *testing.T) {
	f := New(zerolog.Nop())
	sub := f.addSubscriber("slow")
	sub.setSubscribed("ticks", true)

	for i := 0; i < subscriberBufferSize+5; i++ {
		f.Broadcast("ticks", i)
	}

	f.mu.RLock()
	_, stillPresent := f.subscribers["slow"]
	f.mu.RUnlock()
	require.False(t, stillPresent)
}

func TestSubscribeAcceptsMultipleChannels(t *testing.T) {
	f := New(zerolog.Nop())
	f.Broadcast("positions", map[string]string{"symbol": "AAPL"})
	sub := f.addSubscriber("multi")

	f.handleClientMessage(sub, ClientMessage{Type: ClientSubscribe, Channels: []string{"positions", "regime"}})

	require.True(t, sub.subscribedTo("positions"))
	require.True(t, sub.subscribedTo("regime"))

	ack1 := <-sub.outbound
	require.Equal(t, MsgSubscribed, ack1.Type)
	require.Equal(t, "positions", ack1.Channel)
	snap := <-sub.outbound
	require.Equal(t, MsgSnapshot, snap.Type)
	require.Equal(t, "positions", snap.Channel)
	ack2 := <-sub.outbound
	require.Equal(t, MsgSubscribed, ack2.Type)
	require.Equal(t, "regime", ack2.Channel)
}

func TestUnsubscribeDropsEveryListedChannel(t *testing.T) {
	f := New(zerolog.Nop())
	sub := f.addSubscriber("u1")
	sub.setSubscribed("positions", true)
	sub.setSubscribed("regime", true)

	f.handleClientMessage(sub, ClientMessage{Type: ClientUnsubscribe, Channels: []string{"positions", "regime"}})

	require.False(t, sub.subscribedTo("positions"))
	require.False(t, sub.subscribedTo("regime"))
}

// TestResyncRepliesWithSnapshotPerSubscribedChannel drives scenario S4: a
// RESYNC carries only from_seq, no channel, and the fabric must reply with a
// SNAPSHOT for every channel the subscriber currently follows rather than
// looking up a single, nonexistent lastPayload[""] entry.
func TestResyncRepliesWithSnapshotPerSubscribedChannel(t *testing.T) {
	f := New(zerolog.Nop())
	f.Broadcast("positions", map[string]string{"symbol": "AAPL"})
	f.Broadcast("regime", map[string]string{"trend": "strong"})

	sub := f.addSubscriber("resync")
	sub.setSubscribed("positions", true)
	sub.setSubscribed("regime", true)

	f.handleClientMessage(sub, ClientMessage{Type: ClientResync, FromSeq: 0})

	got := make(map[string]Message, 2)
	for i := 0; i < 2; i++ {
		msg := <-sub.outbound
		require.Equal(t, MsgSnapshot, msg.Type)
		got[msg.Channel] = msg
	}
	require.Contains(t, got, "positions")
	require.Contains(t, got, "regime")
}

func TestResyncSkipsChannelsOlderThanFromSeq(t *testing.T) {
	f := New(zerolog.Nop())
	f.Broadcast("positions", map[string]string{"symbol": "AAPL"}) // seq 1

	sub := f.addSubscriber("resync2")
	sub.setSubscribed("positions", true)

	f.handleClientMessage(sub, ClientMessage{Type: ClientResync, FromSeq: 99})

	select {
	case msg := <-sub.outbound:
		t.Fatalf("expected no snapshot, got %+v", msg)
	default:
	}
}

func TestUnknownClientMessageTypeIsIgnored(t *testing.T) {
	f := New(zerolog.Nop())
	sub := f.addSubscriber("s2")
	f.handleClientMessage(sub, ClientMessage{Type: "BOGUS"})
	require.Empty(t, sub.channels)
}
