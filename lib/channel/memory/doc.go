// Package memory implements an in-process sync channel.
//
// A Bus connects independent stores of the same process. Every participant
// joins the bus through its own Endpoint, which implements syncbridge.Channel:
//
//	bus := memory.NewBus()
//
//	a := syncbridge.New(store.New(), bus.Endpoint())
//	b := syncbridge.New(store.New(), bus.Endpoint())
//	a.Enable()
//	b.Enable()
//
// Publications are delivered synchronously on the goroutine of the publisher
// and never to the publishing endpoint. The last payload of every channel is
// retained and replayed to endpoints that subscribe later.
package memory
