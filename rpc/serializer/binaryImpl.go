package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasChannel byte = 1 << 0
	hasOrigin  byte = 1 << 1
	hasPayload byte = 1 << 2
	hasErr     byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	if msg.Channel != "" {
		flags |= hasChannel
		pos = putBytes(result, pos, []byte(msg.Channel))
	}

	if msg.Origin != "" {
		flags |= hasOrigin
		pos = putBytes(result, pos, []byte(msg.Origin))
	}

	// An empty payload is kept distinct from a missing one
	if msg.Payload != nil {
		flags |= hasPayload
		pos = putBytes(result, pos, msg.Payload)
	}

	if msg.Err != "" {
		flags |= hasErr
		putBytes(result, pos, []byte(msg.Err))
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2

	var field []byte
	var err error

	msg.Channel = ""
	if flags&hasChannel != 0 {
		if field, pos, err = readBytes(data, pos, "channel"); err != nil {
			return err
		}
		msg.Channel = string(field)
	}

	msg.Origin = ""
	if flags&hasOrigin != 0 {
		if field, pos, err = readBytes(data, pos, "origin"); err != nil {
			return err
		}
		msg.Origin = string(field)
	}

	msg.Payload = nil
	if flags&hasPayload != 0 {
		if field, pos, err = readBytes(data, pos, "payload"); err != nil {
			return err
		}
		// copy, data may be a pooled buffer
		msg.Payload = make([]byte, len(field))
		copy(msg.Payload, field)
	}

	msg.Err = ""
	if flags&hasErr != 0 {
		if field, _, err = readBytes(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(field)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	// Add sizes for fields that require length encoding (4 bytes for the length)
	if msg.Channel != "" {
		size += 4 + len(msg.Channel)
	}
	if msg.Origin != "" {
		size += 4 + len(msg.Origin)
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// putBytes writes a length prefixed field at pos and returns the next position
func putBytes(dst []byte, pos int, field []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(field)))
	pos += 4
	copy(dst[pos:pos+len(field)], field)
	return pos + len(field)
}

// readBytes reads a length prefixed field at pos and returns it with the next position
func readBytes(data []byte, pos int, name string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", name)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4

	if pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", name)
	}
	return data[pos : pos+n], pos + n, nil
}
