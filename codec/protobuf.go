package codec

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Protobuf stores protobuf responses in binary wire format.
type Protobuf[T proto.Message] struct {
	newMsg func() T
}

// NewProtobuf takes a constructor for empty messages, e.g.
// func() *pb.Todo { return new(pb.Todo) }.
func NewProtobuf[T proto.Message](newMsg func() T) Protobuf[T] {
	return Protobuf[T]{newMsg: newMsg}
}

func (c Protobuf[T]) Encode(m T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(m)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.newMsg()
	err := proto.Unmarshal(b, m)
	return m, err
}

// ProtoJSON stores protobuf responses as canonical protobuf JSON, which stays
// readable in a shared provider.
type ProtoJSON[T proto.Message] struct {
	newMsg func() T
}

func NewProtoJSON[T proto.Message](newMsg func() T) ProtoJSON[T] {
	return ProtoJSON[T]{newMsg: newMsg}
}

func (c ProtoJSON[T]) Encode(m T) ([]byte, error) { return protojson.Marshal(m) }

func (c ProtoJSON[T]) Decode(b []byte) (T, error) {
	m := c.newMsg()
	err := protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(b, m)
	return m, err
}
