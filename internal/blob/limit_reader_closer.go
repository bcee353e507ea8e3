package blob

import "io"

// limitReaderCloser bounds a ReadCloser to n bytes while preserving the underlying Close.
type limitReaderCloser struct {
	rc io.ReadCloser
	lr io.Reader
}

func newLimitReaderCloser(rc io.ReadCloser, n int64) *limitReaderCloser {
	return &limitReaderCloser{rc: rc, lr: io.LimitReader(rc, n)}
}

func (l *limitReaderCloser) Read(p []byte) (int, error) { return l.lr.Read(p) }
func (l *limitReaderCloser) Close() error                { return l.rc.Close() }
