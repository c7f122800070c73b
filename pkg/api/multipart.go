package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-formflow/pkg/field"
)

// containsFile reports whether any value, at any depth, is a file handle.
func containsFile(value any) bool {
	switch v := value.(type) {
	case *field.FileHandle:
		return v != nil
	case map[string]any:
		for _, item := range v {
			if containsFile(item) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if containsFile(item) {
				return true
			}
		}
	}
	return false
}

// encodeMultipart writes values as form fields. Nested maps and slices use
// bracket keys (`address[postcode]`, `slots[0][start]`); nil values are
// omitted.
func encodeMultipart(values map[string]any) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := writeParts(w, "", values); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func writeParts(w *multipart.Writer, key string, value any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case *field.FileHandle:
		if v == nil {
			return nil
		}
		return writeFile(w, key, v)
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := name
			if key != "" {
				child = key + "[" + name + "]"
			}
			if err := writeParts(w, child, v[name]); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, item := range v {
			if err := writeParts(w, fmt.Sprintf("%s[%d]", key, i), item); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for i, item := range v {
			if err := w.WriteField(fmt.Sprintf("%s[%d]", key, i), item); err != nil {
				return err
			}
		}
		return nil
	default:
		return w.WriteField(key, scalarString(v))
	}
}

func writeFile(w *multipart.Writer, key string, handle *field.FileHandle) error {
	header := make(textproto.MIMEHeader)
	name := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(handle.Name)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, key, name))
	contentType := handle.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, handle.Reader())
	return err
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
