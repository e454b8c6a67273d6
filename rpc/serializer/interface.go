package serializer

import (
	"fmt"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// IRPCSerializer IRPCServerAdapter is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message
	// It takes a byte array and a pointer to a Message as parameters
	// It returns an error if any
	Deserialize(b []byte, msg *common.Message) error
}

// New creates the serializer of the given type
func New(t common.SerializerType) (IRPCSerializer, error) {
	switch t {
	case common.SerializerJSON:
		return NewJSONSerializer(), nil
	case common.SerializerGOB:
		return NewGOBSerializer(), nil
	case common.SerializerBinary:
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %q", t)
	}
}
