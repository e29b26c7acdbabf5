// Package lspframe implements the Content-Length framing used by language
// servers on stdio.
package lspframe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
)

const maxFrameBytes = 64 << 20

var ErrMissingLength = errors.New("lspframe: missing Content-Length header")

type Decoder struct {
	reader *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Read returns the payload of the next frame.
func (d *Decoder) Read() ([]byte, error) {
	headers, err := textproto.NewReader(d.reader).ReadMIMEHeader()
	if err != nil {
		if errors.Is(err, io.EOF) && len(headers) == 0 {
			return nil, io.EOF
		}
		return nil, err
	}
	raw := strings.TrimSpace(headers.Get("Content-Length"))
	if raw == "" {
		return nil, ErrMissingLength
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("lspframe: bad Content-Length %q", raw)
	}
	if n > maxFrameBytes {
		return nil, fmt.Errorf("lspframe: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type Encoder struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

func (e *Encoder) Write(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.writer, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	_, err := e.writer.Write(payload)
	return err
}

// Conn pairs a Decoder and Encoder over one byte stream.
type Conn struct {
	*Decoder
	*Encoder
	closer io.Closer
}

func NewConn(r io.Reader, w io.Writer, closer io.Closer) *Conn {
	return &Conn{Decoder: NewDecoder(r), Encoder: NewEncoder(w), closer: closer}
}

func (c *Conn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
