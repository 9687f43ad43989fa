package ingest

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeReader wraps r so that its output is valid UTF-8.
//
// Detection order follows what the upload population actually contains:
// a UTF-8 BOM, then plain UTF-8, then CP949/EUC-KR (the dominant legacy
// encoding for Korean CSV exports). x/text's EUC-KR decoder replaces
// undecodable bytes rather than failing, so the fallback never rejects
// an upload outright.
func DecodeReader(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, 64*1024)

	head, _ := br.Peek(64 * 1024)

	if bytes.HasPrefix(head, utf8BOM) {
		br.Discard(len(utf8BOM))
		return br
	}
	if isLikelyUTF8(head) {
		return br
	}
	return transform.NewReader(br, korean.EUCKR.NewDecoder())
}

// isLikelyUTF8 reports whether head is valid UTF-8. A multi-byte rune may
// be cut off at the peek boundary, so up to 3 trailing continuation bytes
// of an incomplete rune are tolerated.
func isLikelyUTF8(head []byte) bool {
	if utf8.Valid(head) {
		return true
	}
	for trim := 1; trim <= 3 && trim < len(head); trim++ {
		candidate := head[:len(head)-trim]
		if utf8.RuneStart(head[len(head)-trim]) {
			return utf8.Valid(candidate)
		}
	}
	return false
}
