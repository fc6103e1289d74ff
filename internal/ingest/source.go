package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// CompressedExt marks zstd-compressed journals.
const CompressedExt = ".zst"

// DecodeFile decodes the journal at path. Files ending in ".zst" are
// decompressed on the fly. The source defaults to the path.
func DecodeFile(path string, opts ...Option) (*model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), CompressedExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("ingest: zstd reader %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	opts = append([]Option{WithSource(path)}, opts...)
	return Decode(r, opts...)
}
