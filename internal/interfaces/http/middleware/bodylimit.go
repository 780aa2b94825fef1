package middleware

import (
	"errors"
	"io"
)

// ErrBodyTooLarge is returned when a request body exceeds the configured limit
var ErrBodyTooLarge = errors.New("request body too large")

// limitedReadCloser wraps a body reader and fails once the limit is exceeded
type limitedReadCloser struct {
	rc        io.ReadCloser
	remaining int64
}

func newLimitedReadCloser(rc io.ReadCloser, limit int64) io.ReadCloser {
	return &limitedReadCloser{rc: rc, remaining: limit}
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, ErrBodyTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.rc.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrBodyTooLarge
	}
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.rc.Close()
}
