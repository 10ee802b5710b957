// Package subtitle parses SRT files and stores their cues.
//
// A Processor reads one file, tries the sniffed encoding and a fixed
// fallback list with strict decoding, and hands files no encoding could
// parse to a Converter. Parsed cues are stripped of markup, deduplicated by
// text within the file, and written in batches through a CueWriter with
// retries on transient storage errors.
package subtitle
