package squashfs

import (
	"bytes"
	"fmt"
	"io"
)

type SquashComp uint16

const (
	GZip SquashComp = 1
	LZMA            = 2
	LZO             = 3
	XZ              = 4
	LZ4             = 5
	ZSTD            = 6
)

func (s SquashComp) String() string {
	switch s {
	case GZip:
		return "GZip"
	case LZMA:
		return "LZMA"
	case LZO:
		return "LZO"
	case XZ:
		return "XZ"
	case LZ4:
		return "LZ4"
	case ZSTD:
		return "ZSTD"
	}
	return fmt.Sprintf("SquashComp(%d)", s)
}

// DecompressFunc turns a reader over compressed bytes into a reader over
// the decompressed stream. This is the "uncompress(src) -> Result" external
// capability named in spec §1; concrete algorithms live one per file
// (comp_gzip.go, comp_xz.go, comp_zstd.go, comp_lz4.go) and self-register
// through RegisterCompHandler.
type DecompressFunc func(r io.Reader) (io.ReadCloser, error)

// CompressFunc compresses one block. Only the XZ handler sets it, and
// nothing in this module calls it; most CompHandlers leave it nil.
type CompressFunc func(buf []byte) ([]byte, error)

// CompHandler bundles the capability set for one SquashComp id.
type CompHandler struct {
	Decompress DecompressFunc
	Compress   CompressFunc
}

var compHandlers = map[SquashComp]*CompHandler{}

// RegisterCompHandler wires a full handler (decompress + optional
// compress) for a compressor id. Called from each comp_*.go's init().
func RegisterCompHandler(c SquashComp, h *CompHandler) {
	compHandlers[c] = h
}

// RegisterDecompressor is a convenience wrapper for algorithms that only
// provide decompression.
func RegisterDecompressor(c SquashComp, d DecompressFunc) {
	RegisterCompHandler(c, &CompHandler{Decompress: d})
}

// MakeDecompressorErr adapts a reader-constructor that can fail into a
// DecompressFunc.
func MakeDecompressorErr(f func(r io.Reader) (io.ReadCloser, error)) DecompressFunc {
	return f
}

// MakeDecompressor adapts a reader-constructor that cannot fail (most
// stdlib-shaped decoders) into a DecompressFunc.
func MakeDecompressor(f func(r io.Reader) io.ReadCloser) DecompressFunc {
	return func(r io.Reader) (io.ReadCloser, error) {
		return f(r), nil
	}
}

// Decompress exposes decompress to callers outside the package (the
// extraction pipeline's inflator workers), which need to run the same
// per-compressor logic outside the metadata/inode read paths.
func (s SquashComp) Decompress(buf []byte) ([]byte, error) {
	return s.decompress(buf)
}

// decompress runs the registered handler for s over buf and returns the
// fully materialized decompressed bytes. Metadata blocks are bounded to
// SQUASHFS_METADATA_SIZE by the caller (MetadataStore); data/fragment
// blocks are bounded to the superblock's block size.
func (s SquashComp) decompress(buf []byte) ([]byte, error) {
	h, ok := compHandlers[s]
	if !ok || h.Decompress == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompressor, s)
	}

	rc, err := h.Decompress(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// compress runs the registered compressor for s. It has no caller in
// this module; it fails with ErrUnsupportedCompressor when the handler
// leaves Compress nil.
func (s SquashComp) compress(buf []byte) ([]byte, error) {
	h, ok := compHandlers[s]
	if !ok || h.Compress == nil {
		return nil, fmt.Errorf("%w: %s has no compressor wired", ErrUnsupportedCompressor, s)
	}
	return h.Compress(buf)
}
