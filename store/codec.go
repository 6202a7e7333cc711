package store

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"io"
	"sync/atomic"

	"github.com/gozephyr/perfkit/errors"
)

const (
	flagRaw  byte = 0
	flagGzip byte = 1
)

// CodecConfig represents configuration for value encoding
type CodecConfig struct {
	// CompressMinSize is the encoded size from which payloads are gzip-compressed. Zero disables compression.
	CompressMinSize int
	// Level is the gzip compression level
	Level int
}

// DefaultCodecConfig returns the default codec configuration
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		CompressMinSize: 1024, // 1KB
		Level:           gzip.DefaultCompression,
	}
}

// CodecStats represents statistics for encoding
type CodecStats struct {
	Encoded    atomic.Int64
	Decoded    atomic.Int64
	Compressed atomic.Int64
	BytesIn    atomic.Int64
	BytesOut   atomic.Int64
}

// Codec gob-encodes values and gzips large payloads. The first byte of every
// payload records whether it is compressed.
type Codec[V any] struct {
	config CodecConfig
	stats  CodecStats
}

// NewCodec creates a codec for V
func NewCodec[V any](config CodecConfig) *Codec[V] {
	return &Codec[V]{config: config}
}

// Stats returns the codec counters
func (c *Codec[V]) Stats() *CodecStats {
	return &c.stats
}

// Encode serialises value
func (c *Codec[V]) Encode(value V) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(flagRaw)
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, errors.WrapError("Encode", nil, errors.ErrSerialization)
	}
	data := buf.Bytes()
	c.stats.Encoded.Add(1)
	c.stats.BytesIn.Add(int64(len(data) - 1))

	if c.config.CompressMinSize <= 0 || len(data)-1 < c.config.CompressMinSize {
		c.stats.BytesOut.Add(int64(len(data)))
		return data, nil
	}

	var out bytes.Buffer
	out.WriteByte(flagGzip)
	zw, err := gzip.NewWriterLevel(&out, c.config.Level)
	if err != nil {
		return nil, errors.WrapError("Encode", nil, errors.ErrSerialization)
	}
	if _, err := zw.Write(data[1:]); err != nil {
		return nil, errors.WrapError("Encode", nil, errors.ErrSerialization)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WrapError("Encode", nil, errors.ErrSerialization)
	}
	c.stats.Compressed.Add(1)
	c.stats.BytesOut.Add(int64(out.Len()))
	return out.Bytes(), nil
}

// Decode deserialises a payload produced by Encode
func (c *Codec[V]) Decode(data []byte) (V, error) {
	var value V
	if len(data) == 0 {
		return value, errors.WrapError("Decode", nil, errors.ErrDeserialization)
	}

	var r io.Reader = bytes.NewReader(data[1:])
	switch data[0] {
	case flagRaw:
	case flagGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return value, errors.WrapError("Decode", nil, errors.ErrDeserialization)
		}
		defer zr.Close()
		r = zr
	default:
		return value, errors.WrapError("Decode", nil, errors.ErrDeserialization)
	}

	if err := gob.NewDecoder(r).Decode(&value); err != nil {
		return value, errors.WrapError("Decode", nil, errors.ErrDeserialization)
	}
	c.stats.Decoded.Add(1)
	return value, nil
}
