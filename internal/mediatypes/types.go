package mediatypes

import (
	"sort"
	"strings"
)

// FileType represents the role of a file in the indexed tree.
type FileType string

const (
	// FileTypeMedia represents a video file that may have subtitles.
	FileTypeMedia FileType = "media"
	// FileTypeSubtitle represents a subtitle file.
	FileTypeSubtitle FileType = "subtitle"
	// FileTypeOther represents anything else.
	FileTypeOther FileType = "other"
)

// DefaultMediaExtensions are the media formats indexed when no override is
// configured.
var DefaultMediaExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".wmv"}

// DefaultSubtitleExtension is the subtitle format paired with media files.
const DefaultSubtitleExtension = ".srt"

// SubtitleSuffixes are appended to a media file's base name, in order, when
// looking for its subtitle. The empty suffix matches "movie.srt" for
// "movie.mkv".
var SubtitleSuffixes = []string{"", ".en", ".eng", "_eng", "_en", ".english"}

// ExtensionSet is a case-insensitive set of file extensions with leading dots.
type ExtensionSet map[string]bool

// NewExtensionSet builds a set from extensions such as "mp4" or ".MKV".
// Empty entries are ignored.
func NewExtensionSet(exts ...string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		if ext = NormalizeExtension(ext); ext != "" {
			set[ext] = true
		}
	}
	return set
}

// ParseExtensions parses a comma or space separated list such as
// "mp4, .mkv avi". An empty list yields DefaultMediaExtensions.
func ParseExtensions(list string) ExtensionSet {
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	if len(fields) == 0 {
		return NewExtensionSet(DefaultMediaExtensions...)
	}
	return NewExtensionSet(fields...)
}

// Contains reports whether ext (any case, with or without the dot) is in the set.
func (s ExtensionSet) Contains(ext string) bool {
	return s[NormalizeExtension(ext)]
}

// Sorted returns the extensions in lexical order.
func (s ExtensionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// NormalizeExtension lowercases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// GetFileType classifies ext against the media set and the subtitle extension.
func GetFileType(ext string, media ExtensionSet, subtitleExt string) FileType {
	ext = NormalizeExtension(ext)
	switch {
	case ext == "":
		return FileTypeOther
	case media.Contains(ext):
		return FileTypeMedia
	case ext == NormalizeExtension(subtitleExt):
		return FileTypeSubtitle
	}
	return FileTypeOther
}
