package squashfs

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// squashfs's GZip compressor stores blocks as a plain zlib (RFC1950)
// stream, not raw DEFLATE. klauspost/compress/zlib is a drop-in,
// allocation-lighter replacement for compress/zlib with the same API.
func init() {
	RegisterDecompressor(GZip, MakeDecompressorErr(func(r io.Reader) (io.ReadCloser, error) {
		return zlib.NewReader(r)
	}))
}
