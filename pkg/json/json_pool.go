// Package json provides high-performance JSON serialization with object pooling
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// JSONPool manages pooled JSON encoders and decoders
type JSONPool struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
	bufferPool  sync.Pool
}

// Global JSON pool instance
var globalPool = &JSONPool{
	encoderPool: sync.Pool{
		New: func() interface{} {
			return &pooledEncoder{
				buffer: bytes.NewBuffer(make([]byte, 0, 4096)),
			}
		},
	},
	decoderPool: sync.Pool{
		New: func() interface{} {
			return &pooledDecoder{}
		},
	},
	bufferPool: sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		},
	},
}

// pooledEncoder wraps a JSON encoder with a reusable buffer
type pooledEncoder struct {
	encoder *gojson.Encoder
	buffer  *bytes.Buffer
}

// pooledDecoder wraps a JSON decoder
type pooledDecoder struct {
	decoder *gojson.Decoder
}

// GetEncoder gets a pooled JSON encoder
func GetEncoder(w io.Writer) *gojson.Encoder {
	pe := globalPool.encoderPool.Get().(*pooledEncoder)
	pe.buffer.Reset()

	// Always create a new encoder with the specified writer
	pe.encoder = gojson.NewEncoder(w)
	pe.encoder.SetEscapeHTML(false)

	return pe.encoder
}

// PutEncoder returns an encoder to the pool
func PutEncoder(enc *gojson.Encoder) {
	pe := &pooledEncoder{
		encoder: enc,
		buffer:  bytes.NewBuffer(make([]byte, 0, 4096)),
	}
	globalPool.encoderPool.Put(pe)
}

// GetDecoder gets a pooled JSON decoder
func GetDecoder(r io.Reader) *gojson.Decoder {
	pd := globalPool.decoderPool.Get().(*pooledDecoder)

	// Always create a new decoder with the specified reader
	pd.decoder = gojson.NewDecoder(r)
	pd.decoder.UseNumber()

	return pd.decoder
}

// PutDecoder returns a decoder to the pool
func PutDecoder(dec *gojson.Decoder) {
	pd := &pooledDecoder{
		decoder: dec,
	}
	globalPool.decoderPool.Put(pd)
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := globalPool.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	globalPool.bufferPool.Put(buf)
}

// Marshal is a high-performance drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a high-performance drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a high-performance replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalCanonical marshals v to a stable byte form usable as a map key.
// Map keys are sorted by the codec and struct fields keep declaration
// order, so equal values produce equal bytes. HTML escaping is disabled.
func MarshalCanonical(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := GetEncoder(buf)
	defer PutEncoder(enc)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	// Encode appends a trailing newline
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}

	result := make([]byte, len(b))
	copy(result, b)

	return result, nil
}

// MarshalToWriter marshals v directly to a writer using pooled encoder
func MarshalToWriter(w io.Writer, v interface{}) error {
	enc := GetEncoder(w)
	defer PutEncoder(enc)

	return enc.Encode(v)
}

// MarshalToBuffer marshals v to a pooled buffer
func MarshalToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()

	enc := GetEncoder(buf)
	defer PutEncoder(enc)

	if err := enc.Encode(v); err != nil {
		PutBuffer(buf)
		return nil, err
	}

	return buf, nil
}

// EstimateBytes returns the encoded size of v in bytes, 0 when v cannot
// be encoded. Used for rough cache accounting.
func EstimateBytes(v interface{}) int {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := GetEncoder(buf)
	defer PutEncoder(enc)

	if err := enc.Encode(v); err != nil {
		return 0
	}
	return buf.Len()
}

// StreamingEncoder provides efficient streaming JSON encoding
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
	pretty      bool
	indent      string
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	enc := GetEncoder(w)

	se := &StreamingEncoder{
		writer:      w,
		encoder:     enc,
		firstRecord: true,
		isArray:     isArray,
	}

	if isArray {
		w.Write([]byte{'['})
	}

	return se
}

// SetPretty enables pretty printing
func (se *StreamingEncoder) SetPretty(pretty bool, indent string) {
	se.pretty = pretty
	se.indent = indent
	if pretty {
		se.encoder.SetIndent("", indent)
	}
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray {
		if !se.firstRecord {
			se.writer.Write([]byte{','})
			if se.pretty {
				se.writer.Write([]byte{'\n'})
			}
		}
		se.firstRecord = false
	}

	return se.encoder.Encode(v)
}

// Close finalizes the encoding
func (se *StreamingEncoder) Close() error {
	if se.isArray {
		if se.pretty {
			se.writer.Write([]byte{'\n'})
		}
		se.writer.Write([]byte{']'})
	}

	PutEncoder(se.encoder)
	return nil
}

// MarshalRowsArray marshals a slice of row maps as a JSON array
func MarshalRowsArray(rows []map[string]interface{}) ([]byte, error) {
	if len(rows) == 0 {
		return []byte("[]"), nil
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte('[')

	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}

		data, err := gojson.Marshal(row)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}

	buf.WriteByte(']')

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())

	return result, nil
}

// MarshalRowsLines marshals a slice of row maps as line-delimited JSON
func MarshalRowsLines(rows []map[string]interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	for _, row := range rows {
		data, err := gojson.Marshal(row)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())

	return result, nil
}
