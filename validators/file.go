package validators

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrFileNameEmpty       = errors.New("no file name provided")
)

// Fallback when config never ran, e.g. in tests.
var defaultImageExts = []string{".png", ".jpg", ".jpeg"}

// ImageExtValidator checks the extension of p against the configured
// whitelist. This is a name-only check and must run before any receiver
// lookup is done, content sniffing happens later in the upload service.
func ImageExtValidator(p string) error {
	if p == "" {
		return ErrFileNameEmpty
	}

	allowed := viper.GetStringSlice("uploads.allowed_exts")
	if len(allowed) == 0 {
		allowed = defaultImageExts
	}

	ext := strings.ToLower(filepath.Ext(p))
	if !slices.Contains(allowed, ext) {
		return ErrFileTypeUnsupported
	}

	return nil
}
