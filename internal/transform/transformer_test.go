package transform

import (
	"errors"
	"reflect"
	"testing"

	"github.com/orderdesk/sheetsync/internal/source"
)

func sampleRecord() source.Record {
	return source.Record{
		Key:         "#1001",
		CreatedAt:   "2024-03-01T12:30:00Z",
		Account:     "shop1",
		AccountName: "Shop One",
		Attrs: source.Attrs{
			"id":                     "gid://shop/Order/123456",
			"email":                  "buyer@example.com",
			"displayFinancialStatus": "PAID",
			"processedAt":            "2024-03-01T12:31:00+09:00",
			"currencyCode":           "JPY",
			"subtotalPriceSet":       map[string]any{"shopMoney": map[string]any{"amount": "4500"}},
			"totalPriceSet":          map[string]any{"shopMoney": map[string]any{"amount": "5000"}},
			"totalTaxSet":            map[string]any{"shopMoney": map[string]any{"amount": "-10"}},
			"tags":                   []any{"vip", "repeat"},
			"lineItems": map[string]any{
				"edges": []any{
					map[string]any{"node": map[string]any{
						"name":     "Print A",
						"quantity": float64(2),
						"sku":      "SKU-A",
						"taxable":  true,
						"originalUnitPriceSet": map[string]any{
							"shopMoney": map[string]any{"amount": "2250"},
						},
					}},
					map[string]any{"node": map[string]any{
						"name":     "Print B",
						"quantity": float64(1),
						"sku":      "SKU-B",
					}},
				},
			},
		},
	}
}

func cellByName(t *testing.T, schema *Schema, row []string, name string) string {
	t.Helper()
	idx, ok := schema.Index(name)
	if !ok {
		t.Fatalf("column %q not in schema", name)
	}
	return row[idx]
}

func TestRowShapeAndOrderCells(t *testing.T) {
	tr := NewTransformer()
	schema, err := NewSchema(tr.Header())
	if err != nil {
		t.Fatalf("schema from own header: %v", err)
	}

	row := tr.Row(sampleRecord())
	if len(row) != len(OrderColumns) {
		t.Fatalf("row width %d, header width %d", len(row), len(OrderColumns))
	}
	if row[schema.KeyIndex()] != "#1001" {
		t.Fatalf("key cell = %q", row[schema.KeyIndex()])
	}
	if got := cellByName(t, schema, row, "Store"); got != "Shop One" {
		t.Fatalf("store cell: %q", got)
	}
	if got := cellByName(t, schema, row, "Email"); got != "buyer@example.com" {
		t.Fatalf("email cell: %q", got)
	}
	if got := cellByName(t, schema, row, "Tags"); got != "vip, repeat" {
		t.Fatalf("tags cell: %q", got)
	}
	if got := cellByName(t, schema, row, "Id"); got != "123456" {
		t.Fatalf("id cell must keep only the trailing segment, got %q", got)
	}
	// Line-item columns carry the first line item only.
	if got := cellByName(t, schema, row, "Lineitem name"); got != "Print A" {
		t.Fatalf("line item name: %q", got)
	}
	if got := cellByName(t, schema, row, "Lineitem quantity"); got != "2" {
		t.Fatalf("line item quantity: %q", got)
	}
}

func TestRowTimestampNormalization(t *testing.T) {
	tr := NewTransformer()
	schema, _ := NewSchema(tr.Header())

	rec := sampleRecord()
	row := tr.Row(rec)
	// Z-suffixed UTC shifts forward 9 hours.
	if got := cellByName(t, schema, row, "Created at"); got != "2024-03-01 21:30:00" {
		t.Fatalf("UTC input: got %q", got)
	}
	// Offset-bearing input is already in the target zone.
	if got := cellByName(t, schema, row, "Paid at"); got != "2024-03-01 12:31:00" {
		t.Fatalf("offset input: got %q", got)
	}

	rec.CreatedAt = "not-a-timestamp"
	row = tr.Row(rec)
	if got := cellByName(t, schema, row, "Created at"); got != "not-a-timestamp" {
		t.Fatalf("unparseable input must pass through, got %q", got)
	}
}

func TestRowNumericDefaults(t *testing.T) {
	tr := NewTransformer()
	schema, _ := NewSchema(tr.Header())
	row := tr.Row(sampleRecord())

	if got := cellByName(t, schema, row, "Taxes"); got != "0" {
		t.Fatalf("negative amount must default to 0, got %q", got)
	}
	if got := cellByName(t, schema, row, "Shipping"); got != "0" {
		t.Fatalf("absent money field must default to 0, got %q", got)
	}
	if got := cellByName(t, schema, row, "Subtotal"); got != "4500" {
		t.Fatalf("valid amount must be kept, got %q", got)
	}
	if got := cellByName(t, schema, row, "Lineitem price"); got != "2250" {
		t.Fatalf("line item price: got %q", got)
	}
}

func TestRowWithoutLineItems(t *testing.T) {
	tr := NewTransformer()
	schema, _ := NewSchema(tr.Header())

	rec := sampleRecord()
	delete(rec.Attrs, "lineItems")
	row := tr.Row(rec)
	if got := cellByName(t, schema, row, "Lineitem quantity"); got != "0" {
		t.Fatalf("quantity default: %q", got)
	}
	if got := cellByName(t, schema, row, "Lineitem price"); got != "0" {
		t.Fatalf("price default: %q", got)
	}
	if got := cellByName(t, schema, row, "Lineitem requires shipping"); got != "No" {
		t.Fatalf("requires shipping default: %q", got)
	}
	if len(row) != len(OrderColumns) {
		t.Fatalf("row width %d, header width %d", len(row), len(OrderColumns))
	}
}

func TestRowIsPure(t *testing.T) {
	tr := NewTransformer()
	rec := sampleRecord()
	first := tr.Row(rec)
	second := tr.Row(rec)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("transforming the same record twice must yield identical rows")
	}
}

func TestNewSchemaResolvesKeyAndBOM(t *testing.T) {
	schema, err := NewSchema([]string{"\uFEFFName", "Email", "Total"})
	if err != nil {
		t.Fatalf("BOM-prefixed key column must resolve: %v", err)
	}
	if schema.KeyIndex() != 0 {
		t.Fatalf("key index: got %d", schema.KeyIndex())
	}
	if idx, ok := schema.Index("Total"); !ok || idx != 2 {
		t.Fatalf("Total index: got %d, %v", idx, ok)
	}
}

func TestNewSchemaMissingKeyColumnFails(t *testing.T) {
	if _, err := NewSchema([]string{"Id", "Email"}); !errors.Is(err, ErrNoKeyColumn) {
		t.Fatalf("expected ErrNoKeyColumn, got %v", err)
	}
}
