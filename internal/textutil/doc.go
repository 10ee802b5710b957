// Package textutil holds the text helpers shared by the subtitle pipeline:
// encoding sniffing and strict decoding, markup stripping, SRT timestamp
// conversion, and the English word-ratio heuristic used to pre-filter
// subtitle files.
package textutil
