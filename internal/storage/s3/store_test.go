package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/olistqa/olistqa/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "olistqa/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/olist/olist_orders_dataset.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "olistqa/prod/olist/olist_orders_dataset.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	fake := &fakeClient{getErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("bucket-a", "olist", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "olist_orders_dataset.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

func TestPutInfersDatasetContentType(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "olist/olist_products_dataset.parquet", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", fake.lastContentType)
	}
}

func TestReadOnlyStoreRefusesPut(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	store.readOnly = true

	_, err = store.Put(context.Background(), "olist/olist_orders_dataset.csv", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if !errors.Is(err, storage.ErrReadOnly) {
		t.Fatalf("Put() error = %v, want ErrReadOnly", err)
	}
	if fake.lastPutKey != "" {
		t.Fatalf("client Put called with %q", fake.lastPutKey)
	}
}

func TestRequireBucketFailsWhenDatasetBucketMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("olist-data", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.requireBucket(context.Background()); err == nil || !strings.Contains(err.Error(), "olist-data") {
		t.Fatalf("requireBucket() error = %v", err)
	}
	if fake.createBucketCalled {
		t.Fatal("requireBucket must not create the bucket")
	}
}

func TestNewRejectsReadOnlyWithAutoCreate(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "localhost:9000", Bucket: "b", ReadOnly: true, AutoCreateBucket: true})
	if err == nil {
		t.Fatal("expected config error")
	}
}

func TestGetDetectsTruncatedBody(t *testing.T) {
	fake := &fakeClient{body: "order_id\n1\n", size: 64}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	reader, err := store.Get(context.Background(), "olist_orders_dataset.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := io.ReadAll(reader); !errors.Is(err, storage.ErrTruncated) {
		t.Fatalf("ReadAll() error = %v, want ErrTruncated", err)
	}
}

func TestGetReadsCompleteBody(t *testing.T) {
	fake := &fakeClient{body: "order_id\n1\n"}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	reader, err := store.Get(context.Background(), "olist_orders_dataset.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "order_id\n1\n" {
		t.Fatalf("body = %q", got)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastContentType    string
	bucketExists       bool
	createBucketCalled bool
	getErr             error
	body               string
	size               int64
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if f.getErr != nil {
		return nil, storage.ObjectInfo{}, f.getErr
	}
	size := f.size
	if size == 0 {
		size = int64(len(f.body))
	}
	return io.NopCloser(strings.NewReader(f.body)), storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
