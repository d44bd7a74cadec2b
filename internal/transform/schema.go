// Package transform maps extracted records into destination-shaped rows.
// Everything here is pure: no I/O, no clocks.
package transform

import (
	"errors"
	"strings"
)

// KeyColumn is the natural-key column. It is always the first cell of a row.
const KeyColumn = "Name"

// ErrNoKeyColumn means the destination header has no usable natural-key
// column. Guessing a fallback key would risk the no-duplicate-keys
// invariant, so callers treat this as fatal for the run.
var ErrNoKeyColumn = errors.New("header has no natural-key column")

// OrderColumns is the destination header for the orders table.
var OrderColumns = []string{
	"Name", "Store", "Email", "Financial Status", "Paid at", "Fulfillment Status", "Fulfilled at",
	"Currency", "Subtotal", "Shipping", "Taxes", "Total",
	"Discount Code", "Shipping Method", "Created at",
	"Lineitem quantity", "Lineitem name", "Lineitem price", "Lineitem compare at price",
	"Lineitem sku", "Lineitem requires shipping", "Lineitem taxable", "Lineitem fulfillment status",
	"Lineitem discount",
	"Billing Name", "Billing Company", "Billing Address1", "Billing Address2",
	"Billing City", "Billing Zip", "Billing Province", "Billing Country", "Billing Phone",
	"Shipping Name", "Shipping Company", "Shipping Address1", "Shipping Address2",
	"Shipping City", "Shipping Zip", "Shipping Province", "Shipping Country", "Shipping Phone",
	"Notes", "Note Attributes", "Cancelled at", "Cancel Reason", "Payment Method",
	"Refunded Amount", "Id", "Tags", "Risk Level", "Source",
	"Tax 1 Name", "Tax 1 Value", "Tax 2 Name", "Tax 2 Value",
	"Tax 3 Name", "Tax 3 Value", "Tax 4 Name", "Tax 4 Value", "Tax 5 Name", "Tax 5 Value",
	"Phone", "Billing Province Name", "Shipping Province Name",
}

// Schema is a named column mapping resolved once from a header row; it
// replaces positional column constants everywhere downstream.
type Schema struct {
	columns []string
	index   map[string]int
	keyIdx  int
}

// NewSchema resolves a header row. Header cells are matched after trimming
// whitespace and a leading BOM, which spreadsheet exports are prone to carry.
func NewSchema(header []string) (*Schema, error) {
	index := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, cell := range header {
		name := strings.TrimPrefix(strings.TrimSpace(cell), "\uFEFF")
		columns[i] = name
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	keyIdx, ok := index[KeyColumn]
	if !ok {
		return nil, ErrNoKeyColumn
	}
	return &Schema{columns: columns, index: index, keyIdx: keyIdx}, nil
}

// Index returns the 0-based column index for name.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// KeyIndex returns the natural-key column index.
func (s *Schema) KeyIndex() int {
	return s.keyIdx
}

// Width returns the number of columns.
func (s *Schema) Width() int {
	return len(s.columns)
}

// Columns returns the resolved column names in order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}
