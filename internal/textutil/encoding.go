package textutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// SniffSampleSize is the number of leading bytes inspected when guessing a
// file's encoding.
const SniffSampleSize = 4096

// FallbackEncodings is the order tried after the sniffed encoding.
var FallbackEncodings = []string{
	"utf-8",
	"utf-8-sig",
	"euc-kr",
	"cp949",
	"windows-1252",
	"iso-8859-1",
	"ascii",
}

// ErrUndecodable is returned when bytes are not valid in the requested encoding.
var ErrUndecodable = errors.New("input is not valid in encoding")

// ErrUnknownEncoding is returned for encoding names that cannot be resolved.
var ErrUnknownEncoding = errors.New("unknown encoding")

var knownEncodings = map[string]encoding.Encoding{
	"utf-8-sig":    unicode.UTF8BOM,
	"euc-kr":       korean.EUCKR,
	"cp949":        korean.EUCKR,
	"windows-1252": charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin-1":      charmap.ISO8859_1,
}

// SniffEncoding guesses the encoding of data from its first SniffSampleSize
// bytes. It returns "utf-8" when the detector has no answer.
func SniffEncoding(data []byte) string {
	sample := data
	if len(sample) > SniffSampleSize {
		sample = sample[:SniffSampleSize]
	}
	if len(sample) == 0 {
		return "utf-8"
	}

	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil || result.Charset == "" {
		return "utf-8"
	}
	return NormalizeName(result.Charset)
}

// NormalizeName lowercases an encoding label and maps common aliases onto
// the names used in FallbackEncodings.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "utf8":
		return "utf-8"
	case "utf-8-bom", "utf8-sig":
		return "utf-8-sig"
	case "latin1", "latin-1", "iso8859-1", "iso_8859-1":
		return "iso-8859-1"
	case "cp1252":
		return "windows-1252"
	case "us-ascii":
		return "ascii"
	case "euckr", "ks_c_5601-1987":
		return "euc-kr"
	}
	return n
}

// Candidates returns the encodings to try for a file whose sniffed encoding
// is sniffed: the sniffed one first, then FallbackEncodings, without duplicates.
func Candidates(sniffed string) []string {
	seen := make(map[string]bool, len(FallbackEncodings)+1)
	out := make([]string, 0, len(FallbackEncodings)+1)

	for _, name := range append([]string{NormalizeName(sniffed)}, FallbackEncodings...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Lookup resolves an encoding name. utf-8 and ascii are handled by Decode
// directly and are not returned here.
func Lookup(name string) (encoding.Encoding, error) {
	name = NormalizeName(name)
	if enc, ok := knownEncodings[name]; ok {
		return enc, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// Decode converts data from the named encoding to a UTF-8 string. It is
// strict: input that would need replacement characters is rejected with
// ErrUndecodable. A leading byte order mark is dropped.
func Decode(data []byte, name string) (string, error) {
	name = NormalizeName(name)

	switch name {
	case "utf-8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: utf-8", ErrUndecodable)
		}
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	case "ascii":
		for _, b := range data {
			if b >= utf8.RuneSelf {
				return "", fmt.Errorf("%w: ascii", ErrUndecodable)
			}
		}
		return string(data), nil
	}

	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUndecodable, name, err)
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.ContainsRune(data, utf8.RuneError) {
		return "", fmt.Errorf("%w: %s", ErrUndecodable, name)
	}
	return string(bytes.TrimPrefix(out, utf8BOM)), nil
}

// DecodeLossy converts data from the named encoding, replacing invalid
// sequences instead of failing. Unknown names fall back to windows-1252.
func DecodeLossy(data []byte, name string) string {
	if NormalizeName(name) == "utf-8" && utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM))
	}

	enc, err := Lookup(name)
	if err != nil || enc == unicode.UTF8 {
		enc = charmap.Windows1252
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(bytes.TrimPrefix(out, utf8BOM))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}
