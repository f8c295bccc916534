package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olistqa/olistqa/internal/storage"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Files points at the five Olist source tables on local disk.
type Files struct {
	Orders    string
	Items     string
	Products  string
	Payments  string
	Customers string
}

// DefaultNames returns the canonical Olist file names for format.
func DefaultNames(format string) Files {
	ext := "." + normalizeFormat(format)
	return Files{
		Orders:    "olist_orders_dataset" + ext,
		Items:     "olist_order_items_dataset" + ext,
		Products:  "olist_products_dataset" + ext,
		Payments:  "olist_order_payments_dataset" + ext,
		Customers: "olist_customers_dataset" + ext,
	}
}

func (f Files) entries() []entry {
	return []entry{
		{role: "orders", path: f.Orders},
		{role: "items", path: f.Items},
		{role: "products", path: f.Products},
		{role: "payments", path: f.Payments},
		{role: "customers", path: f.Customers},
	}
}

func (f Files) mapPaths(fn func(string) string) Files {
	return Files{
		Orders:    fn(f.Orders),
		Items:     fn(f.Items),
		Products:  fn(f.Products),
		Payments:  fn(f.Payments),
		Customers: fn(f.Customers),
	}
}

func (f Files) Validate() error {
	for _, item := range f.entries() {
		if strings.TrimSpace(item.path) == "" {
			return fmt.Errorf("%s file is required", item.role)
		}
	}
	return nil
}

type entry struct {
	role string
	path string
}

// Source yields local copies of the dataset files. The returned cleanup func
// must be called once the working table has been built.
type Source interface {
	Resolve(ctx context.Context) (Files, func(), error)
}

type LocalSource struct {
	Dir    string
	Format string
}

func (s LocalSource) Resolve(_ context.Context) (Files, func(), error) {
	dir := strings.TrimSpace(s.Dir)
	if dir == "" {
		return Files{}, nil, fmt.Errorf("dataset directory is required")
	}
	files := DefaultNames(s.Format).mapPaths(func(name string) string { return filepath.Join(dir, name) })
	for _, item := range files.entries() {
		if _, err := os.Stat(item.path); err != nil {
			return Files{}, nil, fmt.Errorf("stat %s file %q: %w", item.role, item.path, err)
		}
	}
	return files, func() {}, nil
}

type ObjectSource struct {
	Store  storage.DatasetReader
	Prefix string
	Format string
}

func (s ObjectSource) Resolve(ctx context.Context) (Files, func(), error) {
	if s.Store == nil {
		return Files{}, nil, fmt.Errorf("object store is required")
	}

	names := DefaultNames(s.Format)
	var keyErr error
	keys := names.mapPaths(func(name string) string {
		key, err := storage.DatasetObjectKey(s.Prefix, name)
		if err != nil && keyErr == nil {
			keyErr = err
		}
		return key
	})
	if keyErr != nil {
		return Files{}, nil, keyErr
	}
	for _, item := range keys.entries() {
		if _, err := s.Store.Stat(ctx, item.path); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return Files{}, nil, fmt.Errorf("%s object %q not found", item.role, item.path)
			}
			return Files{}, nil, fmt.Errorf("stat %s object %q: %w", item.role, item.path, err)
		}
	}

	workDir, err := os.MkdirTemp("", "olistqa-dataset-")
	if err != nil {
		return Files{}, nil, fmt.Errorf("create dataset temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(workDir) }

	local := names.mapPaths(func(name string) string { return filepath.Join(workDir, name) })
	localEntries := local.entries()
	for i, item := range keys.entries() {
		reader, err := s.Store.Get(ctx, item.path)
		if err != nil {
			cleanup()
			return Files{}, nil, fmt.Errorf("get object %q: %w", item.path, err)
		}
		if err := writeFile(localEntries[i].path, reader); err != nil {
			_ = reader.Close()
			cleanup()
			return Files{}, nil, fmt.Errorf("write local dataset file %q: %w", localEntries[i].path, err)
		}
		if err := reader.Close(); err != nil {
			cleanup()
			return Files{}, nil, fmt.Errorf("close object %q: %w", item.path, err)
		}
	}
	return local, cleanup, nil
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), FormatParquet) {
		return FormatParquet
	}
	return FormatCSV
}
