package snapshot

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec converts snapshots to and from the opaque payload bytes persisted on
// versions. Callers never inspect payload bytes directly.
type Codec interface {
	Encode(s Snapshot) ([]byte, error)
	Decode(data []byte) (Snapshot, error)
}

// formatProtoZstd tags payloads encoded as zstd-compressed protobuf structs.
const formatProtoZstd byte = 0x01

// ProtoCodec encodes snapshots as protobuf Struct messages compressed with
// zstd. The leading format byte versions the wire form so the compression
// choice can change without disturbing stored payloads.
type ProtoCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ Codec = (*ProtoCodec)(nil)

// NewProtoCodec returns a codec ready for concurrent use.
func NewProtoCodec() (*ProtoCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ProtoCodec{enc: enc, dec: dec}, nil
}

// Encode validates and serializes s.
func (c *ProtoCodec) Encode(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(map[string]any(s))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotInvalidValue, "snapshot has unsupported value", err)
	}
	raw, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	compressed := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2+1))
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, formatProtoZstd)
	return append(out, compressed...), nil
}

// Decode restores the snapshot encoded in data.
func (c *ProtoCodec) Decode(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CodeSnapshotCorrupt, "payload is empty")
	}
	if data[0] != formatProtoZstd {
		return nil, apperrors.WithMetadata(apperrors.CodeSnapshotCorrupt, "unknown payload format", map[string]string{
			"format": fmt.Sprintf("0x%02x", data[0]),
		})
	}

	raw, err := c.dec.DecodeAll(data[1:], nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotCorrupt, "decompress payload", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotCorrupt, "unmarshal payload", err)
	}
	return Snapshot(st.AsMap()), nil
}
