package lspframe

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderWritesHeaderAndPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Write([]byte(`{"a":1}`)))
	assert.Equal(t, "Content-Length: 7\r\n\r\n{\"a\":1}", buf.String())
}

func TestDecoderReadsConsecutiveFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Write([]byte(`{"id":1}`)))
	require.NoError(t, enc.Write([]byte(`{"id":2,"text":"héllo"}`)))

	dec := NewDecoder(&buf)
	first, err := dec.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(first))
	second, err := dec.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"id":2,"text":"héllo"}`, string(second))

	_, err = dec.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderAcceptsExtraHeaders(t *testing.T) {
	in := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: 2\r\n\r\n{}"
	payload, err := NewDecoder(strings.NewReader(in)).Read()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))
}

func TestDecoderRejectsBadHeaders(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("Content-Type: x\r\n\r\n{}")).Read()
	assert.ErrorIs(t, err, ErrMissingLength)

	_, err = NewDecoder(strings.NewReader("Content-Length: nope\r\n\r\n{}")).Read()
	assert.Error(t, err)
}

func TestDecoderTruncatedPayload(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("Content-Length: 10\r\n\r\n{}")).Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
