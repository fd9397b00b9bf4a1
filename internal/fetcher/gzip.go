package fetcher

import (
	"bufio"
	"compress/gzip"
	"io"

	"github.com/rotisserie/eris"
)

// MaybeGzip wraps r with a gzip reader when the stream carries the gzip
// magic bytes, so callers handle dblp.xml and dblp.xml.gz identically.
// Closing the returned reader closes r when r is a Closer.
func MaybeGzip(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "gzip: peek")
	}

	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, eris.Wrap(err, "gzip: open")
		}
		return &wrappedReader{Reader: gz, inner: []io.Closer{gz, closerOf(r)}}, nil
	}

	return &wrappedReader{Reader: br, inner: []io.Closer{closerOf(r)}}, nil
}

type wrappedReader struct {
	io.Reader
	inner []io.Closer
}

func (w *wrappedReader) Close() error {
	var first error
	for _, c := range w.inner {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func closerOf(r io.Reader) io.Closer {
	if c, ok := r.(io.Closer); ok {
		return c
	}
	return nil
}
