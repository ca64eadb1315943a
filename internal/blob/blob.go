// Package blob stores expense receipts. The ledger only keeps the returned
// reference.
package blob

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultContainer holds receipts unless configured otherwise.
const DefaultContainer = "facturas"

// Store uploads, locates and removes receipts.
type Store interface {
	// Upload stores r under a fresh name derived from filename and returns
	// its reference.
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	// Resolve returns a URL for ref.
	Resolve(ctx context.Context, ref string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// NewName builds a collision-free blob name that keeps the file extension.
func NewName(filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 || strings.ContainsFunc(ext[min(1, len(ext)):], func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), ext)
}

func validRef(ref string) error {
	if ref == "" || strings.Contains(ref, "..") || strings.ContainsAny(ref, "/\\") {
		return fmt.Errorf("invalid receipt reference %q", ref)
	}
	return nil
}
