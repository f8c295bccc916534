package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DatasetObjectKey joins a dataset prefix and a file name into an object key.
func DatasetObjectKey(prefix, fileName string) (string, error) {
	if !fileNamePattern.MatchString(fileName) {
		return "", fmt.Errorf("invalid dataset file name: %q", fileName)
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return fileName, nil
	}
	cleaned := path.Clean(prefix)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid dataset prefix: %q", prefix)
	}
	return path.Join(cleaned, fileName), nil
}

// ContentTypeFor maps dataset file extensions to the content type stored
// with the object.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
