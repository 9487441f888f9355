// Package linereader assembles console lines from a framing-less byte stream.
//
// The device console is a plain serial link: no packet boundaries, no length
// prefixes, just ASCII terminated by "\r\n". The assembler pulls one byte at a
// time from a ByteSource, drops '\r', and cuts at '\n'.
//
// Transient read failures (serial timeouts, empty reads) are retried
// according to a caller supplied RetryPolicy. The default policy retries
// forever, so a stalled source stalls the reader; pass a bounded policy or
// cancel the context to get out.
package linereader
