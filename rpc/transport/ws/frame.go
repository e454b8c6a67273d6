package ws

import (
	"encoding/binary"
	"fmt"
)

// WebsocketPath is the route the server accepts websocket connections on
const WebsocketPath = "/ws"

// pushRequestID marks frames that are pushed by the server without a request
const pushRequestID = 0

// encodeFrame prefixes data with the request id. Websocket messages are
// already delimited, so no length is needed:
// - 8 bytes: requestID (uint64, big endian), 0 for pushes
// - N bytes: data payload
func encodeFrame(requestID uint64, data []byte) []byte {
	frame := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(frame[:8], requestID)
	copy(frame[8:], data)
	return frame
}

// decodeFrame splits a websocket message into request id and payload
func decodeFrame(frame []byte) (uint64, []byte, error) {
	if len(frame) < 8 {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	return binary.BigEndian.Uint64(frame[:8]), frame[8:], nil
}
