// Package ndjson frames JSON values one per line, the stdio transport
// editors speak to previewd.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// MaxLineBytes bounds a single request line.
const MaxLineBytes = 1 << 20

var ErrLineTooLong = errors.New("ndjson line exceeds limit")

type Decoder struct {
	reader *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Decode reads the next non-blank line into v. A final line without a
// trailing newline is still decoded.
func (d *Decoder) Decode(v any) error {
	for {
		line, err := d.readLine()
		if len(bytes.TrimSpace(line)) > 0 {
			return json.Unmarshal(line, v)
		}
		if err != nil {
			return err
		}
	}
}

func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxLineBytes {
			return nil, ErrLineTooLong
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

type Encoder struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// Encode writes v and its newline in one call so concurrent encoders never
// interleave partial lines.
func (e *Encoder) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.writer.Write(payload)
	return err
}
