package selection

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads an image from disk. The content type comes from the
// extension, falling back to sniffing the data.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return File{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}
