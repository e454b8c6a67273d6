package server

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewChannelServerAdapter creates an adapter that relays snapshots between the
// subscribers of named channels. The serializer is used to encode the pushed
// snapshots and must be the one used by the server.
func NewChannelServerAdapter(serializer serializer.IRPCSerializer) IRPCServerAdapter {
	return &channelAdapter{
		serializer: serializer,
		channels:   xsync.NewMapOf[string, *hubChannel](),
		peers:      xsync.NewMapOf[uint64, struct{}](),
	}
}

// channelAdapter implements the relay of the hub
//
// Thread-safety: Requests of different peers are handled concurrently, every
// channel is protected by its own mutex.
type channelAdapter struct {
	serializer serializer.IRPCSerializer
	channels   *xsync.MapOf[string, *hubChannel]
	peers      *xsync.MapOf[uint64, struct{}]
}

// hubChannel is the state of one named channel
type hubChannel struct {
	mu             sync.Mutex
	subscribers    map[uint64]hubSubscriber // by connection id
	retained       []byte
	retainedOrigin string
}

type hubSubscriber struct {
	peer   transport.Peer
	origin string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *channelAdapter) Handle(peer transport.Peer, req *common.Message) *common.Message {
	if _, loaded := a.peers.LoadOrStore(peer.ID(), struct{}{}); !loaded {
		connectedPeers.Add(1)
	}
	requestsTotal(req.MsgType).Inc()

	if req.Channel == "" {
		invalidTotal.Inc()
		return common.NewErrorResponse("missing channel name")
	}

	switch req.MsgType {
	case common.MsgTSubscribe:
		return common.NewResponse(a.subscribe(peer, req.Channel, originOf(peer, req)))
	case common.MsgTUnsubscribe:
		a.unsubscribe(peer, req.Channel)
		return common.NewResponse(nil)
	case common.MsgTPublish:
		return common.NewResponse(a.publish(peer, req.Channel, originOf(peer, req), req.Payload))
	default:
		invalidTotal.Inc()
		return common.NewErrorResponse("unsupported message type: %s", req.MsgType)
	}
}

func (a *channelAdapter) Disconnected(peer transport.Peer) {
	if _, loaded := a.peers.LoadAndDelete(peer.ID()); loaded {
		connectedPeers.Add(-1)
	}
	a.channels.Range(func(name string, ch *hubChannel) bool {
		ch.mu.Lock()
		if _, ok := ch.subscribers[peer.ID()]; ok {
			delete(ch.subscribers, peer.ID())
			Logger.Debugf("removed peer %d from channel %q", peer.ID(), name)
		}
		ch.mu.Unlock()
		return true
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// originOf returns the origin of a request, connections without an explicit
// origin are their own origin
func originOf(peer transport.Peer, req *common.Message) string {
	if req.Origin != "" {
		return req.Origin
	}
	return fmt.Sprintf("conn-%d", peer.ID())
}

func (a *channelAdapter) channel(name string) *hubChannel {
	ch, loaded := a.channels.LoadOrCompute(name, func() *hubChannel {
		return &hubChannel{subscribers: make(map[uint64]hubSubscriber)}
	})
	if !loaded {
		openChannels.Add(1)
	}
	return ch
}

// subscribe adds peer to the channel and replays the retained snapshot if it
// was published by another origin
func (a *channelAdapter) subscribe(peer transport.Peer, name, origin string) error {
	ch := a.channel(name)
	ch.mu.Lock()
	ch.subscribers[peer.ID()] = hubSubscriber{peer: peer, origin: origin}
	var replay []byte
	var replayOrigin string
	if ch.retained != nil && ch.retainedOrigin != origin {
		replay, replayOrigin = ch.retained, ch.retainedOrigin
	}
	ch.mu.Unlock()

	Logger.Debugf("peer %d (%s) subscribed to channel %q", peer.ID(), origin, name)

	if replay == nil {
		return nil
	}
	data, err := a.serializer.Serialize(*common.NewSnapshotPush(name, replayOrigin, replay))
	if err != nil {
		return fmt.Errorf("failed to serialize retained snapshot: %w", err)
	}
	if err := peer.Push(data); err != nil {
		pushErrorsTotal.Inc()
		return fmt.Errorf("failed to replay retained snapshot: %w", err)
	}
	replaysTotal.Inc()
	return nil
}

func (a *channelAdapter) unsubscribe(peer transport.Peer, name string) {
	ch, ok := a.channels.Load(name)
	if !ok {
		return
	}
	ch.mu.Lock()
	delete(ch.subscribers, peer.ID())
	ch.mu.Unlock()
	Logger.Debugf("peer %d unsubscribed from channel %q", peer.ID(), name)
}

// publish retains payload and pushes it to every subscriber of another origin
// and connection. Push errors of single subscribers do not fail the request.
func (a *channelAdapter) publish(peer transport.Peer, name, origin string, payload []byte) error {
	// the payload belongs to the request and is retained beyond it
	retained := make([]byte, len(payload))
	copy(retained, payload)

	data, err := a.serializer.Serialize(*common.NewSnapshotPush(name, origin, retained))
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	ch := a.channel(name)
	ch.mu.Lock()
	ch.retained = retained
	ch.retainedOrigin = origin
	receivers := make([]transport.Peer, 0, len(ch.subscribers))
	for id, sub := range ch.subscribers {
		if id != peer.ID() && sub.origin != origin {
			receivers = append(receivers, sub.peer)
		}
	}
	ch.mu.Unlock()

	publishedTotal.Inc()
	for _, p := range receivers {
		if err := p.Push(data); err != nil {
			pushErrorsTotal.Inc()
			Logger.Warningf("failed to push snapshot of channel %q to peer %d: %v", name, p.ID(), err)
			continue
		}
		pushesTotal.Inc()
	}
	Logger.Debugf("relayed %d bytes on channel %q from %s to %d peers", len(payload), name, origin, len(receivers))
	return nil
}
