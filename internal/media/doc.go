// Package media discovers media files and the subtitle files paired with them.
//
// A Scanner walks the media root in lexical order, keeps files whose
// extension is in the configured media set, and looks up subtitles next to
// each one by base name. Incremental scans skip media already present in
// the store; only the path is compared.
package media
