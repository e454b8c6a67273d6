package client

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/syncbridge"
	synctesting "github.com/ValentinKolb/rKV/lib/syncbridge/testing"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/ValentinKolb/rKV/rpc/transport/ws"
)

// startHub runs a hub until the test ends and returns its address
func startHub(t *testing.T, tr transport.IRPCServerTransport, config common.ServerConfig) string {
	t.Helper()
	ser, err := serializer.New(config.Serializer)
	if err != nil {
		t.Fatalf("serializer.New failed: %v", err)
	}
	s := server.NewRPCServer(config, tr, ser)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		select {
		case err := <-errCh:
			t.Fatalf("Serve failed: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("hub did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() {
		s.Close()
		<-errCh
	})
	return s.Addr()
}

func TestRPCChannel(t *testing.T) {
	tests := []struct {
		name       string
		transport  common.TransportType
		serializer common.SerializerType
		server     func() transport.IRPCServerTransport
	}{
		{"TCP+Binary", common.TransportTCP, common.SerializerBinary, tcp.NewTCPServerTransport},
		{"TCP+JSON", common.TransportTCP, common.SerializerJSON, tcp.NewTCPServerTransport},
		{"WS+GOB", common.TransportWebsocket, common.SerializerGOB, func() transport.IRPCServerTransport { return ws.NewWebsocketServerTransport() }},
	}

	for _, tt := range tests {
		synctesting.RunChannelTests(t, tt.name, func(t *testing.T) synctesting.EndpointFactory {
			addr := startHub(t, tt.server(), common.ServerConfig{
				Transport:  common.TransportConfig{Endpoint: "127.0.0.1:0", Type: tt.transport},
				Serializer: tt.serializer,
			})
			return func() syncbridge.Channel {
				ch, err := Dial(common.ClientConfig{
					Transport:     common.TransportConfig{Endpoint: addr, Type: tt.transport},
					Serializer:    tt.serializer,
					TimeoutSecond: 2,
				})
				if err != nil {
					t.Fatalf("Dial failed: %v", err)
				}
				t.Cleanup(func() { ch.Close() })
				return ch
			}
		})
	}
}

func TestSecondLocalSubscriberStartsFromLastSnapshot(t *testing.T) {
	config := common.ClientConfig{
		Transport:     common.TransportConfig{Type: common.TransportTCP},
		Serializer:    common.SerializerBinary,
		TimeoutSecond: 2,
	}
	config.Transport.Endpoint = startHub(t, tcp.NewTCPServerTransport(), common.ServerConfig{
		Transport:  common.TransportConfig{Endpoint: "127.0.0.1:0"},
		Serializer: config.Serializer,
	})

	a, err := Dial(config)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer a.Close()
	b, err := Dial(config)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer b.Close()

	first := make(chan []byte, 4)
	if _, err := b.Subscribe("ch", func(p []byte) { first <- p }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := a.Publish("ch", []byte("state")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatalf("first subscriber got nothing")
	}

	second := make(chan []byte, 4)
	if _, err := b.Subscribe("ch", func(p []byte) { second <- p }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	select {
	case p := <-second:
		if string(p) != "state" {
			t.Errorf("expected %q, got %q", "state", p)
		}
	default:
		t.Fatalf("second subscriber did not start from the last snapshot")
	}
}

func TestClosedChannel(t *testing.T) {
	addr := startHub(t, tcp.NewTCPServerTransport(), common.ServerConfig{
		Transport:  common.TransportConfig{Endpoint: "127.0.0.1:0"},
		Serializer: common.SerializerJSON,
	})

	ch, err := Dial(common.ClientConfig{
		Transport:  common.TransportConfig{Endpoint: addr, Type: common.TransportTCP},
		Serializer: common.SerializerJSON,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	cancel, err := ch.Subscribe("ch", func([]byte) {})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	cancel()

	if err := ch.Publish("ch", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Publish, got %v", err)
	}
	if _, err := ch.Subscribe("ch", func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Subscribe, got %v", err)
	}
}

func TestDialErrors(t *testing.T) {
	tests := []struct {
		name   string
		config common.ClientConfig
	}{
		{"UnknownTransport", common.ClientConfig{
			Transport:  common.TransportConfig{Endpoint: "127.0.0.1:1", Type: "carrier-pigeon"},
			Serializer: common.SerializerJSON,
		}},
		{"UnknownSerializer", common.ClientConfig{
			Transport:  common.TransportConfig{Endpoint: "127.0.0.1:1", Type: common.TransportTCP},
			Serializer: "xml",
		}},
		{"MissingEndpoint", common.ClientConfig{
			Transport:  common.TransportConfig{Type: common.TransportTCP},
			Serializer: common.SerializerJSON,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ch, err := Dial(tt.config); err == nil {
				ch.Close()
				t.Fatalf("expected Dial to fail")
			}
		})
	}
}
