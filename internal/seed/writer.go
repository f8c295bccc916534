package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/olistqa/olistqa/internal/dataset"
	"github.com/olistqa/olistqa/internal/storage"
)

// Sink receives encoded dataset files by name.
type Sink interface {
	WriteFile(ctx context.Context, name string, data []byte) (string, error)
}

type DirSink struct {
	Dir string
}

func (s DirSink) WriteFile(_ context.Context, name string, data []byte) (string, error) {
	dir := strings.TrimSpace(s.Dir)
	if dir == "" {
		return "", fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, nil
}

type ObjectSink struct {
	Store  storage.DatasetWriter
	Prefix string
}

func (s ObjectSink) WriteFile(ctx context.Context, name string, data []byte) (string, error) {
	if s.Store == nil {
		return "", fmt.Errorf("object store is required")
	}
	key, err := storage.DatasetObjectKey(s.Prefix, name)
	if err != nil {
		return "", err
	}
	info, err := s.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return info.Key, nil
}

type WrittenFile struct {
	Name     string
	Location string
	Rows     int
	Bytes    int
}

// Write encodes every table as parquet under its canonical Olist file name.
func Write(ctx context.Context, sink Sink, data Dataset) ([]WrittenFile, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	names := dataset.DefaultNames(dataset.FormatParquet)

	type table struct {
		name   string
		rows   int
		encode func() ([]byte, error)
	}
	tables := []table{
		{names.Orders, len(data.Orders), func() ([]byte, error) { return EncodeRows(data.Orders) }},
		{names.Items, len(data.Items), func() ([]byte, error) { return EncodeRows(data.Items) }},
		{names.Products, len(data.Products), func() ([]byte, error) { return EncodeRows(data.Products) }},
		{names.Payments, len(data.Payments), func() ([]byte, error) { return EncodeRows(data.Payments) }},
		{names.Customers, len(data.Customers), func() ([]byte, error) { return EncodeRows(data.Customers) }},
	}

	written := make([]WrittenFile, 0, len(tables))
	for _, t := range tables {
		encoded, err := t.encode()
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", t.name, err)
		}
		location, err := sink.WriteFile(ctx, t.name, encoded)
		if err != nil {
			return written, err
		}
		written = append(written, WrittenFile{Name: t.name, Location: location, Rows: t.rows, Bytes: len(encoded)})
	}
	return written, nil
}

func EncodeRows[T any](rows []T) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
