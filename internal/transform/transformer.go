package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/orderdesk/sheetsync/internal/source"
)

// timestampLayout is the single destination timestamp form.
const timestampLayout = "2006-01-02 15:04:05"

// Transformer flattens records into rows matching OrderColumns. The mapping
// is strictly one row per record: the destination table is keyed by the
// order name, so multi-row expansion would break the no-duplicate-keys
// invariant. Line-item columns carry the first line item; a record with none
// carries the documented defaults.
type Transformer struct {
	loc *time.Location
}

// NewTransformer builds a transformer targeting the fixed +09:00 offset the
// destination table expects.
func NewTransformer() *Transformer {
	return &Transformer{loc: time.FixedZone("JST", 9*60*60)}
}

// Header returns the destination header row.
func (t *Transformer) Header() []string {
	out := make([]string, len(OrderColumns))
	copy(out, OrderColumns)
	return out
}

// Row converts one record. The result is exactly len(OrderColumns) wide;
// absent attributes become documented defaults, never omitted cells.
func (t *Transformer) Row(rec source.Record) []string {
	base := t.orderCells(rec)
	items := rec.Attrs.List("lineItems", "edges")
	if len(items) == 0 {
		return buildRow(base, defaultLineItemCells())
	}
	return buildRow(base, lineItemCells(items[0].Map("node")))
}

func buildRow(base, item map[string]string) []string {
	row := make([]string, len(OrderColumns))
	for i, name := range OrderColumns {
		if v, ok := item[name]; ok {
			row[i] = v
		} else if v, ok := base[name]; ok {
			row[i] = v
		}
	}
	return row
}

func (t *Transformer) orderCells(rec source.Record) map[string]string {
	attrs := rec.Attrs

	email := attrs.Str("email")
	if email == "" {
		email = attrs.Str("customer", "email")
	}

	fulfilledAt := ""
	if fulfillments := attrs.List("fulfillments"); len(fulfillments) > 0 {
		fulfilledAt = t.formatTimestamp(fulfillments[0].Str("createdAt"))
	}

	paymentMethod := strings.Join(attrs.StrList("paymentGatewayNames"), ", ")
	if gateways := uniqueGateways(attrs.List("transactions")); len(gateways) > 0 {
		paymentMethod = strings.Join(gateways, ", ")
	}

	refunded := "0"
	if refunds := attrs.List("refunds"); len(refunds) > 0 {
		total := 0.0
		for _, refund := range refunds {
			amount := refund.Map("totalRefundedSet").Map("shopMoney").Str("amount")
			if v, err := strconv.ParseFloat(amount, 64); err == nil {
				total += v
			}
		}
		refunded = strconv.FormatFloat(total, 'f', -1, 64)
	}

	var noteAttrs []string
	for _, attr := range attrs.List("customAttributes") {
		key, value := attr.Str("key"), attr.Str("value")
		if key != "" && value != "" {
			noteAttrs = append(noteAttrs, fmt.Sprintf("%s: %s", key, value))
		}
	}

	orderID := attrs.Str("id")
	if i := strings.LastIndex(orderID, "/"); i >= 0 {
		orderID = orderID[i+1:]
	}

	billing := attrs.Map("billingAddress")
	shipping := attrs.Map("shippingAddress")

	cells := map[string]string{
		"Name":                   rec.Key,
		"Store":                  rec.AccountName,
		"Email":                  email,
		"Financial Status":       attrs.Str("displayFinancialStatus"),
		"Paid at":                t.formatTimestamp(attrs.Str("processedAt")),
		"Fulfillment Status":     attrs.Str("displayFulfillmentStatus"),
		"Fulfilled at":           fulfilledAt,
		"Currency":               attrs.Str("currencyCode"),
		"Subtotal":               moneyCell(attrs.Map("subtotalPriceSet").Map("shopMoney").Str("amount")),
		"Shipping":               moneyCell(attrs.Map("totalShippingPriceSet").Map("shopMoney").Str("amount")),
		"Taxes":                  moneyCell(attrs.Map("totalTaxSet").Map("shopMoney").Str("amount")),
		"Total":                  moneyCell(attrs.Map("totalPriceSet").Map("shopMoney").Str("amount")),
		"Discount Code":          strings.Join(attrs.StrList("discountCodes"), ", "),
		"Shipping Method":        attrs.Str("shippingLine", "title"),
		"Created at":             t.formatTimestamp(rec.CreatedAt),
		"Notes":                  attrs.Str("note"),
		"Note Attributes":        strings.Join(noteAttrs, "; "),
		"Cancelled at":           t.formatTimestamp(attrs.Str("cancelledAt")),
		"Cancel Reason":          attrs.Str("cancelReason"),
		"Payment Method":         paymentMethod,
		"Refunded Amount":        refunded,
		"Id":                     orderID,
		"Tags":                   strings.Join(attrs.StrList("tags"), ", "),
		"Risk Level":             attrs.Str("riskLevel"),
		"Source":                 attrs.Str("sourceIdentifier"),
		"Phone":                  attrs.Str("customer", "phone"),
		"Billing Province Name":  billing.Str("province"),
		"Shipping Province Name": shipping.Str("province"),
	}
	addressCells(cells, "Billing", billing)
	addressCells(cells, "Shipping", shipping)

	for i, tax := range attrs.List("taxLines") {
		if i >= 5 {
			break
		}
		cells[fmt.Sprintf("Tax %d Name", i+1)] = tax.Str("title")
		cells[fmt.Sprintf("Tax %d Value", i+1)] = tax.Map("priceSet").Map("shopMoney").Str("amount")
	}
	return cells
}

func addressCells(cells map[string]string, prefix string, addr source.Attrs) {
	cells[prefix+" Name"] = addr.Str("name")
	cells[prefix+" Company"] = addr.Str("company")
	cells[prefix+" Address1"] = addr.Str("address1")
	cells[prefix+" Address2"] = addr.Str("address2")
	cells[prefix+" City"] = addr.Str("city")
	cells[prefix+" Zip"] = addr.Str("zip")
	cells[prefix+" Province"] = addr.Str("provinceCode")
	cells[prefix+" Country"] = addr.Str("countryCode")
	cells[prefix+" Phone"] = addr.Str("phone")
}

func lineItemCells(node source.Attrs) map[string]string {
	var discounts []string
	for _, alloc := range node.List("discountAllocations") {
		if amount := alloc.Map("allocatedAmountSet").Map("shopMoney").Str("amount"); amount != "" {
			discounts = append(discounts, amount)
		}
	}
	return map[string]string{
		"Lineitem quantity":           quantityCell(node.Int("quantity")),
		"Lineitem name":               node.Str("name"),
		"Lineitem price":              moneyCell(node.Map("originalUnitPriceSet").Map("shopMoney").Str("amount")),
		"Lineitem compare at price":   moneyCell(node.Str("variant", "compareAtPrice")),
		"Lineitem sku":                node.Str("sku"),
		"Lineitem requires shipping":  yesNo(node.Bool("requiresShipping")),
		"Lineitem taxable":            yesNo(node.Bool("taxable")),
		"Lineitem fulfillment status": node.Str("fulfillmentStatus"),
		"Lineitem discount":           strings.Join(discounts, ", "),
	}
}

func defaultLineItemCells() map[string]string {
	return map[string]string{
		"Lineitem quantity":           "0",
		"Lineitem name":               "",
		"Lineitem price":              "0",
		"Lineitem compare at price":   "0",
		"Lineitem sku":                "",
		"Lineitem requires shipping":  "No",
		"Lineitem taxable":            "No",
		"Lineitem fulfillment status": "",
		"Lineitem discount":           "",
	}
}

// formatTimestamp normalizes an ISO timestamp, Z-suffixed or offset-bearing,
// to the destination layout in the target zone. Unparseable input is passed
// through unchanged.
func (t *Transformer) formatTimestamp(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return parsed.In(t.loc).Format(timestampLayout)
}

// moneyCell keeps the source value only when it parses as a valid
// non-negative number; everything else becomes "0".
func moneyCell(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0"
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return "0"
	}
	return raw
}

func quantityCell(n int) string {
	if n > 0 {
		return strconv.Itoa(n)
	}
	return "0"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func uniqueGateways(transactions []source.Attrs) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tx := range transactions {
		gateway := tx.Str("gateway")
		if gateway == "" {
			continue
		}
		if _, ok := seen[gateway]; ok {
			continue
		}
		seen[gateway] = struct{}{}
		out = append(out, gateway)
	}
	return out
}
