// Package ws implements a websocket transport for the hub protocol, built on
// gorilla/websocket and served through a chi router.
//
// Every websocket message carries one frame: an 8 byte request id followed by
// the payload. Responses echo the id of their request, pushes use id 0.
//
// Key Components:
//
//   - ServerTransport: Accepts websocket connections on WebsocketPath. Further
//     http routes can be mounted on its Router, the hub uses this to serve
//     /metrics and /healthz next to the websocket endpoint.
//
//   - clientTransport: Connects to ws://<endpoint>/ws (or a full ws:// url) and
//     correlates responses by request id.
package ws
