package governance

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const slugSuffixLength = 8

// newProposalSlug derives a URL-safe slug from the proposal title with a
// random suffix so titles need not be unique. Generated once at creation and
// never changed afterwards.
func newProposalSlug(title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "proposal"
	}
	if len(base) > 120 {
		base = strings.Trim(base[:120], "-")
	}

	suffix, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	compact := strings.ReplaceAll(suffix.String(), "-", "")
	return fmt.Sprintf("%s-%s", base, compact[len(compact)-slugSuffixLength:]), nil
}
