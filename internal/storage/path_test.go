package storage

import "testing"

func TestDatasetObjectKey(t *testing.T) {
	key, err := DatasetObjectKey("/datasets/olist/", "olist_orders_dataset.parquet")
	if err != nil {
		t.Fatalf("DatasetObjectKey() error = %v", err)
	}
	if key != "datasets/olist/olist_orders_dataset.parquet" {
		t.Fatalf("DatasetObjectKey() = %q", key)
	}

	key, err = DatasetObjectKey("", "olist_orders_dataset.csv")
	if err != nil {
		t.Fatalf("DatasetObjectKey() error = %v", err)
	}
	if key != "olist_orders_dataset.csv" {
		t.Fatalf("DatasetObjectKey() = %q", key)
	}
}

func TestDatasetObjectKeyRejectsInvalidInput(t *testing.T) {
	cases := []struct{ prefix, name string }{
		{"olist", "../orders.csv"},
		{"olist", "nested/orders.csv"},
		{"olist", ""},
		{"../outside", "orders.csv"},
		{"..", "orders.csv"},
	}
	for _, tc := range cases {
		if _, err := DatasetObjectKey(tc.prefix, tc.name); err == nil {
			t.Fatalf("expected error for prefix=%q name=%q", tc.prefix, tc.name)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"olist/olist_orders_dataset.parquet": "application/vnd.apache.parquet",
		"olist_sellers_dataset.CSV":          "text/csv",
		"README":                             "application/octet-stream",
	}
	for key, want := range cases {
		if got := ContentTypeFor(key); got != want {
			t.Fatalf("ContentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}
