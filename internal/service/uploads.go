package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"facebox/validators"

	"github.com/gabriel-vasile/mimetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const uploadsDir = "uploads"
const downloadsDir = "downloads"
const keyCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// Uploads copies shared images into the uploads directory under the
// application root. Stored names are random so two users sending
// photo.jpg never clash. The mailbox store only ever sees the relative
// path this service hands back.
type Uploads struct {
	root string
}

func NewUploads(root string) (*Uploads, error) {
	if err := os.MkdirAll(filepath.Join(root, uploadsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory, %w", err)
	}

	return &Uploads{root: root}, nil
}

// Store copies srcPath into the uploads directory and returns the
// relative path to record. The extension whitelist runs first, then the
// content is sniffed so a renamed non-image doesn't slip through.
func (u *Uploads) Store(srcPath string) (string, error) {
	if err := validators.ImageExtValidator(srcPath); err != nil {
		return "", err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file, %w", err)
	}
	defer src.Close()

	mime, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("failed to sniff file type, %w", err)
	}

	if !strings.HasPrefix(mime.String(), "image/") {
		return "", validators.ErrFileTypeUnsupported
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind source file, %w", err)
	}

	key, err := gonanoid.Generate(keyCharset, 16)
	if err != nil {
		return "", fmt.Errorf("failed to generate stored name, %w", err)
	}

	name := key + strings.ToLower(filepath.Ext(srcPath))
	rel := filepath.Join(uploadsDir, name)

	if err := copyTo(src, filepath.Join(u.root, rel)); err != nil {
		return "", err
	}

	zap.L().Debug("Upload stored", zap.String("src", srcPath), zap.String("rel_path", rel))

	return rel, nil
}

// Download copies a received artifact out of the uploads directory into
// downloads/, keeping its stored name.
func (u *Uploads) Download(relPath string) (string, error) {
	src, err := os.Open(filepath.Join(u.root, relPath))
	if err != nil {
		return "", fmt.Errorf("failed to open stored file, %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Join(u.root, downloadsDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create downloads directory, %w", err)
	}

	dest := filepath.Join(u.root, downloadsDir, filepath.Base(relPath))
	if err := copyTo(src, dest); err != nil {
		return "", err
	}

	return dest, nil
}

// Path resolves a stored relative path to an absolute one for display.
func (u *Uploads) Path(relPath string) string {
	return filepath.Join(u.root, relPath)
}

func copyTo(src io.Reader, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create destination file, %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to copy file, %w", err)
	}

	return nil
}
