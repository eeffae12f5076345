package embcache

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
)

// vectorSer packs a []float32 as a length-prefixed run of fixed-width
// floats. Raw (not varint) float encoding keeps values byte-exact and the
// size predictable: 1–5 length bytes plus 4 bytes per dimension.
var vectorSer = ord.NewSliceSer[float32](raw.Float32)

func marshalVector(vec []float32) []byte {
	buf := make([]byte, vectorSer.Size(vec))
	vectorSer.Marshal(vec, buf)
	return buf
}

func unmarshalVector(data []byte) ([]float32, error) {
	vec, _, err := vectorSer.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal vector: %w", err)
	}
	return vec, nil
}
