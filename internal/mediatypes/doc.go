// Package mediatypes provides shared file classification for the indexer.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # Extensions
//
// Media formats are held in an ExtensionSet, which matches case-insensitively:
//
//	set := mediatypes.ParseExtensions(os.Getenv("MEDIA_EXTENSIONS"))
//	if set.Contains(filepath.Ext(name)) {
//	    // candidate media file
//	}
//
// # Subtitle Pairing
//
// A media file "movie.mkv" is paired with subtitles named after its base
// name plus one of SubtitleSuffixes and the subtitle extension:
//
//	movie.srt, movie.en.srt, movie.eng.srt, movie_eng.srt, movie_en.srt, movie.english.srt
//
// followed by any other "movie.*.srt".
package mediatypes
