package http

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrFramerDone is returned when bytes are fed after a request was produced.
var ErrFramerDone = errors.New("framer already produced a request")

// Framer reassembles one request from the chunks read off a connection.
//
// A connection carries exactly one request. Once the framer has produced it,
// further input is rejected with ErrFramerDone; the engine stops reading at
// that point and closes the connection after the response, so keep-alive and
// pipelined requests are unsupported.
//
// In body-aware mode the framer buffers until the CRLFCRLF header terminator
// is seen and, when Content-Length is declared, until the body is complete.
// Otherwise only the first line of the first chunk is parsed.
type Framer struct {
	buf       []byte
	bodyAware bool
	maxBytes  int
	done      bool
}

// NewFramer returns a Framer. maxBytes <= 0 disables the size limit.
func NewFramer(bodyAware bool, maxBytes int) *Framer {
	return &Framer{bodyAware: bodyAware, maxBytes: maxBytes}
}

// Feed appends chunk to the buffer. It returns the parsed request once one is
// complete, (nil, nil) when more input is needed, or a parse error.
func (f *Framer) Feed(chunk []byte) (*Request, error) {
	if f.done {
		return nil, ErrFramerDone
	}

	if !f.bodyAware {
		f.done = true
		return ParseRequestLine(chunk)
	}

	f.buf = append(f.buf, chunk...)

	headerEnd := bytes.Index(f.buf, crlfcrlf)
	if headerEnd == -1 {
		if f.tooLarge(len(f.buf)) {
			return nil, f.overflow()
		}
		return nil, nil
	}

	if need := declaredLength(f.buf[:headerEnd]); need > 0 {
		total := headerEnd + len(crlfcrlf) + need
		if f.tooLarge(total) {
			return nil, f.overflow()
		}
		if len(f.buf) < total {
			return nil, nil
		}
	}

	return f.complete()
}

// Flush hands whatever has been buffered to the parser. The engine calls it
// when the peer stops sending before the request was complete. It returns
// (nil, nil) if nothing was buffered.
func (f *Framer) Flush() (*Request, error) {
	if f.done || len(f.buf) == 0 {
		return nil, nil
	}
	return f.complete()
}

// Buffered reports the number of bytes waiting for completion.
func (f *Framer) Buffered() int { return len(f.buf) }

func (f *Framer) complete() (*Request, error) {
	data := f.buf
	f.buf = nil
	f.done = true
	return ParseRequest(data)
}

func (f *Framer) tooLarge(n int) bool {
	return f.maxBytes > 0 && n > f.maxBytes
}

func (f *Framer) overflow() error {
	f.buf = nil
	f.done = true
	return &ParseError{Field: "request", Reason: "exceeds " + strconv.Itoa(f.maxBytes) + " bytes"}
}

// declaredLength scans a header block for Content-Length. Like the parser,
// the last occurrence wins. A missing or malformed value yields 0; the parser
// reports malformed values.
func declaredLength(head []byte) int {
	length := 0
	for _, line := range bytes.Split(head, []byte("\n")) {
		name, value, ok := bytes.Cut(trimCR(line), []byte(":"))
		if !ok || !strings.EqualFold(string(bytes.TrimSpace(name)), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(string(bytes.TrimSpace(value)))
		if err != nil || n < 0 {
			n = 0
		}
		length = n
	}
	return length
}
