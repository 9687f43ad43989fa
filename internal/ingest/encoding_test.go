package ingest

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/text/encoding/korean"
)

func TestDecodeReaderUTF8(t *testing.T) {
	in := "city,population\n서울,9700000\n"
	out, err := io.ReadAll(DecodeReader(strings.NewReader(in)))
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestDecodeReaderBOM(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...)
	out, err := io.ReadAll(DecodeReader(bytes.NewReader(in)))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(out))
}

func TestDecodeReaderEUCKR(t *testing.T) {
	utf8Text := "지역,매출\n서울,100\n부산,200\n"
	encoded, err := korean.EUCKR.NewEncoder().String(utf8Text)
	require.NoError(t, err)
	require.NotEqual(t, utf8Text, encoded)

	out, err := io.ReadAll(DecodeReader(strings.NewReader(encoded)))
	require.NoError(t, err)
	assert.Equal(t, utf8Text, string(out))
}

func TestDecodeReaderASCII(t *testing.T) {
	in := "a,b,c\n1,2,3\n"
	out, err := io.ReadAll(DecodeReader(strings.NewReader(in)))
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}
