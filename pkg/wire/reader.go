package wire

import (
	"bufio"
	"errors"
	"io"
)

// ReadBufferSize is the fixed size of the per-connection read buffer.
const ReadBufferSize = 8192

// LineReader reads LF-terminated lines and exact-length bodies from a
// connection through one fixed-size buffer.
type LineReader struct {
	br *bufio.Reader
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReaderSize(r, ReadBufferSize)}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// When the stream ends mid-line the partial line is returned and the next
// call reports io.EOF. No length limit is applied.
func (lr *LineReader) ReadLine() (string, error) {
	line, err := lr.br.ReadSlice('\n')
	if err == nil {
		return string(trimEOL(line)), nil
	}
	if !errors.Is(err, bufio.ErrBufferFull) {
		return partial(line, err)
	}

	// The line spans more than one buffer fill.
	buf := append([]byte(nil), line...)
	for {
		line, err = lr.br.ReadSlice('\n')
		buf = append(buf, line...)
		if err == nil {
			return string(trimEOL(buf)), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return partial(buf, err)
		}
	}
}

// ReadExact reads exactly n bytes. A short read returns the bytes received
// together with io.ErrUnexpectedEOF.
func (lr *LineReader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(lr.br, buf)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return buf[:got], err
}

// Buffered returns the bytes read from the connection but not yet consumed.
// The slice is only valid until the next read.
func (lr *LineReader) Buffered() []byte {
	b, _ := lr.br.Peek(lr.br.Buffered())
	return b
}

func partial(line []byte, err error) (string, error) {
	if errors.Is(err, io.EOF) && len(line) > 0 {
		return string(line), nil
	}
	return "", err
}

func trimEOL(line []byte) []byte {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
