package nl2sql

import "strings"

// WorkingTable is the name the joined Olist relation is registered under.
const WorkingTable = "olist"

type Schema struct {
	Table   string
	Columns []string
}

func DefaultSchema() Schema {
	return Schema{
		Table: WorkingTable,
		Columns: []string{
			"order_id",
			"order_status",
			"order_purchase_timestamp",
			"price",
			"freight_value",
			"product_id",
			"product_category_name",
			"payment_type",
			"payment_value",
			"customer_id",
			"customer_state",
			"seller_id",
		},
	}
}

// ColumnList renders the columns the way they are embedded in prompts: ['a','b'].
func (s Schema) ColumnList() string {
	quoted := make([]string, 0, len(s.Columns))
	for _, column := range s.Columns {
		quoted = append(quoted, "'"+column+"'")
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func (s Schema) table() string {
	if strings.TrimSpace(s.Table) == "" {
		return WorkingTable
	}
	return s.Table
}
