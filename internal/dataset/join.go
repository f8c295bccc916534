package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JoinSQL builds the statement that materializes the working table: orders
// left-joined with line items, products, payments and customers on their
// natural keys.
func JoinSQL(table string, files Files) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("table name is required")
	}
	if err := files.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS
SELECT
	o.* REPLACE (CAST(o.order_purchase_timestamp AS TIMESTAMP) AS order_purchase_timestamp),
	i.* EXCLUDE (order_id),
	p.* EXCLUDE (product_id),
	pay.* EXCLUDE (order_id),
	c.* EXCLUDE (customer_id)
FROM %s AS o
LEFT JOIN %s AS i ON i.order_id = o.order_id
LEFT JOIN %s AS p ON p.product_id = i.product_id
LEFT JOIN %s AS pay ON pay.order_id = o.order_id
LEFT JOIN %s AS c ON c.customer_id = o.customer_id`,
		quoteIdent(table),
		scanExpr(files.Orders),
		scanExpr(files.Items),
		scanExpr(files.Products),
		scanExpr(files.Payments),
		scanExpr(files.Customers),
	), nil
}

func scanExpr(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return "read_parquet(" + quoteString(path) + ")"
	}
	return "read_csv_auto(" + quoteString(path) + ", header = true)"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
