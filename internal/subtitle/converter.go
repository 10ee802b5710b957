package subtitle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subtitle-indexer/internal/filesystem"
	"subtitle-indexer/internal/textutil"
)

// Converter writes a UTF-8 copy of a subtitle that no strict decode could
// read. It is the last step of the encoding cascade.
type Converter interface {
	// Convert writes the converted copy of src into outDir and returns its
	// path. encodingHint is the sniffed encoding and may be empty.
	Convert(ctx context.Context, src, encodingHint, outDir string) (string, error)
}

// LossyConverter decodes with the hinted encoding (windows-1252 when the
// hint is unusable), replacing invalid sequences, and normalizes line
// endings.
type LossyConverter struct{}

// Convert implements Converter.
func (LossyConverter) Convert(ctx context.Context, src, encodingHint, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := filesystem.ReadFileWithRetry(src, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}

	text := textutil.DecodeLossy(data, encodingHint)
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	dst := filepath.Join(outDir, filepath.Base(src))
	if err := os.WriteFile(dst, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("failed to write converted subtitle: %w", err)
	}
	return dst, nil
}
