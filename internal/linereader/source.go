package linereader

import (
	"bufio"
	"errors"
	"io"
	"os"
	"time"
)

// ByteSource is the only capability the assembler needs from a transport.
type ByteSource interface {
	ReadByte() (byte, error)
}

var (
	// ErrTransient can be wrapped by sources to mark a retryable failure.
	ErrTransient = errors.New("transient read failure")
	// ErrRetriesExhausted is returned once the retry budget is spent.
	ErrRetriesExhausted = errors.New("read retries exhausted")
)

// IsTransient reports whether a read error should be retried.
// Serial drivers surface read timeouts as deadline errors, and bufio turns
// repeated empty reads into io.ErrNoProgress; both are transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, io.EOF) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrNoProgress) {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// RetryPolicy bounds how the assembler retries transient reads.
type RetryPolicy struct {
	// MaxRetries is the number of consecutive transient failures tolerated
	// for a single byte. Zero means unlimited.
	MaxRetries int
	// Backoff is the pause between retries. Zero retries immediately.
	Backoff time.Duration
}

// DefaultRetryPolicy retries forever without pausing, which suits a local
// serial link that is always expected to deliver eventually.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{}
}

func (p RetryPolicy) exhausted(retries int) bool {
	return p.MaxRetries > 0 && retries > p.MaxRetries
}

// ReaderSource adapts an io.Reader (file, stdin, device node) to ByteSource.
type ReaderSource struct {
	r *bufio.Reader
}

// NewReaderSource wraps r in a buffered reader.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: bufio.NewReader(r)}
}

// ReadByte reads one byte. bufio clears its error after reporting it, so a
// failed read may be retried.
func (s *ReaderSource) ReadByte() (byte, error) {
	return s.r.ReadByte()
}
