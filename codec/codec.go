// Package codec provides the two injectable capabilities the engine treats
// as external collaborators: a byte-stream compressor and a document
// serializer. The engine never inspects a value past these two interfaces.
package codec

// Serializer turns a document into bytes and back. Implementations must
// satisfy decode(encode(v)) == v for every v they accept.
type Serializer interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, v any) error
}

// Compressor turns bytes into bytes and back, losslessly.
type Compressor interface {
	Compress(b []byte) ([]byte, error)
	Decompress(b []byte) ([]byte, error)
}
