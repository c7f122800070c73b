package field

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for preview validation
	_ "image/jpeg" // register decoder for preview validation
	_ "image/png"  // register decoder for preview validation
	"io"
	"net/http"
	"path"
	"strings"
)

// DefaultMaxFileSize caps uploads at 2MB.
const DefaultMaxFileSize int64 = 2 << 20

// Accept selects the group of content types a file field takes.
type Accept string

const (
	AcceptImage    Accept = "image"
	AcceptDocument Accept = "document"
	AcceptAll      Accept = "all"
)

var acceptedTypes = map[Accept][]string{
	AcceptImage: {"image/jpeg", "image/png", "image/svg+xml", "image/gif"},
	AcceptDocument: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
}

func init() {
	acceptedTypes[AcceptAll] = append(append([]string(nil), acceptedTypes[AcceptImage]...), acceptedTypes[AcceptDocument]...)
}

// Allows reports whether contentType belongs to the group. Parameters such as
// "; charset=utf-8" are ignored.
func (a Accept) Allows(contentType string) bool {
	if a == "" {
		a = AcceptAll
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	for _, allowed := range acceptedTypes[a] {
		if ct == allowed {
			return true
		}
	}
	return false
}

var (
	ErrFileType       = errors.New("file type not allowed")
	ErrFileTooLarge   = errors.New("file exceeds size limit")
	ErrFileUnreadable = errors.New("file could not be read")
	ErrInvalidImage   = errors.New("file is not a valid image")
)

// FileError reports a rejected selection. The state is left untouched.
type FileError struct {
	Field string
	File  string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("field: %s: %s: %v", e.Field, e.File, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// FileHandle is the in-memory representation of a selected file until it is
// uploaded as a multipart part.
type FileHandle struct {
	Name         string
	OriginalName string
	ContentType  string
	Size         int64
	Data         []byte
}

// Reader returns a fresh reader over the file contents.
func (h *FileHandle) Reader() io.Reader {
	if h == nil {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(h.Data)
}

// IsImage reports whether the handle carries an image type.
func (h *FileHandle) IsImage() bool {
	return h != nil && strings.HasPrefix(h.ContentType, "image/")
}

// FileKeys names the sibling keys a file field occupies in the state.
type FileKeys struct {
	Handle  string
	Preview string
	Name    string
	URL     string
}

// KeysFor derives the sibling keys for a file field.
func KeysFor(name string) FileKeys {
	return FileKeys{
		Handle:  name,
		Preview: name + "Preview",
		Name:    name + "Name",
		URL:     name + "Url",
	}
}

// FileField binds a file picker to one field.
type FileField struct {
	Name    string
	Accept  Accept
	MaxSize int64
}

// Load reads and validates a selected file, producing the handle and a
// locally renderable preview (a data URL for raster images, empty otherwise).
func (f FileField) Load(fileName, contentType string, r io.Reader) (*FileHandle, string, error) {
	maxSize := f.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	fail := func(err error) (*FileHandle, string, error) {
		return nil, "", &FileError{Field: f.Name, File: fileName, Err: err}
	}
	if r == nil {
		return fail(ErrFileUnreadable)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrFileUnreadable, err))
	}
	if int64(len(data)) > maxSize {
		return fail(ErrFileTooLarge)
	}

	ct := strings.TrimSpace(contentType)
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	if !f.Accept.Allows(ct) {
		return fail(fmt.Errorf("%w: %s", ErrFileType, ct))
	}

	handle := &FileHandle{
		Name:         SanitizeFileName(fileName),
		OriginalName: fileName,
		ContentType:  ct,
		Size:         int64(len(data)),
		Data:         data,
	}

	preview := ""
	if handle.IsImage() {
		if !strings.HasPrefix(ct, "image/svg") {
			if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
				return fail(ErrInvalidImage)
			}
		}
		preview = "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	return handle, preview, nil
}

// Select loads the file and forwards handle, preview and display name in one
// batch. Rejected files leave the sink untouched.
func (f FileField) Select(sink Sink, fileName, contentType string, r io.Reader) (map[string]any, error) {
	handle, preview, err := f.Load(fileName, contentType, r)
	if err != nil {
		return nil, err
	}
	keys := KeysFor(f.Name)
	return sink.Apply(
		Change{Name: keys.Handle, Value: handle},
		Change{Name: keys.Preview, Value: preview},
		Change{Name: keys.Name, Value: handle.Name},
	), nil
}

// Remove clears the handle, preview, display name and any persisted URL in
// one batch.
func (f FileField) Remove(sink Sink) map[string]any {
	keys := KeysFor(f.Name)
	return sink.Apply(
		Change{Name: keys.Handle},
		Change{Name: keys.Preview},
		Change{Name: keys.Name},
		Change{Name: keys.URL},
	)
}

// PreviewKind classifies a persisted URL or file name as "image", "pdf" or
// "other" so callers can pick inline, framed or download rendering.
func PreviewKind(ref string) string {
	name := ref
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp":
		return "image"
	case ".pdf":
		return "pdf"
	default:
		return "other"
	}
}

// FormatSize renders a byte count the way upload widgets label files.
func FormatSize(size int64) string {
	switch {
	case size <= 0:
		return ""
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}
