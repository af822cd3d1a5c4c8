package parser

import "io"

// bomReader wraps an io.Reader and skips a leading UTF-8 BOM (0xEF 0xBB 0xBF).
// Exports saved through Windows tools commonly carry one, and it would
// otherwise end up glued to the first header cell or XML declaration.
type bomReader struct {
	r       io.Reader
	checked bool
	rest    []byte
	buf     [3]byte
}

// newBOMReader returns a reader that transparently strips a leading BOM.
func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

// Read implements io.Reader. The first call peeks at the first three bytes;
// if they are not a BOM they are replayed before the rest of the stream.
func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		n, err := io.ReadFull(b.r, b.buf[:])
		isBOM := n == 3 && b.buf[0] == 0xEF && b.buf[1] == 0xBB && b.buf[2] == 0xBF
		if n > 0 && !isBOM {
			b.rest = b.buf[:n]
		}
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		// EOF surfaces on a later call, once the replay buffer is drained.
	}

	if len(b.rest) > 0 {
		n := copy(p, b.rest)
		b.rest = b.rest[n:]
		return n, nil
	}

	return b.r.Read(p)
}
