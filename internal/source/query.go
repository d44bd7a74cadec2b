package source

import (
	"fmt"
	"strings"
)

const ordersQueryFields = `
          edges {
            node {
              id
              name
              email
              customer { firstName lastName email phone }
              displayFinancialStatus
              displayFulfillmentStatus
              createdAt
              processedAt
              cancelledAt
              fulfillments { createdAt }
              currencyCode
              subtotalPriceSet { shopMoney { amount } }
              totalShippingPriceSet { shopMoney { amount } }
              totalTaxSet { shopMoney { amount } }
              totalPriceSet { shopMoney { amount } }
              discountCodes
              shippingLine { title }
              lineItems(first: 50) {
                edges {
                  node {
                    name
                    quantity
                    originalUnitPriceSet { shopMoney { amount } }
                    variant { compareAtPrice }
                    sku
                    requiresShipping
                    taxable
                    fulfillmentStatus
                    discountAllocations { allocatedAmountSet { shopMoney { amount } } }
                  }
                }
              }
              billingAddress { name company address1 address2 city zip province provinceCode country countryCode phone }
              shippingAddress { name company address1 address2 city zip province provinceCode country countryCode phone }
              note
              customAttributes { key value }
              cancelReason
              paymentGatewayNames
              refunds { totalRefundedSet { shopMoney { amount } } }
              tags
              riskLevel
              sourceIdentifier
              taxLines { title priceSet { shopMoney { amount } } }
              transactions { gateway kind status }
            }
          }
          pageInfo {
            hasNextPage
            endCursor
          }`

// buildOrdersQuery renders the paginated orders query for one window. The
// window is half-open, so the upper bound is exclusive.
func buildOrdersQuery(window Window, cursor string, pageSize int) string {
	afterClause := ""
	if cursor != "" {
		afterClause = fmt.Sprintf(`, after: %q`, cursor)
	}
	filter := fmt.Sprintf("created_at:>=%s AND created_at:<%s",
		window.Start.UTC().Format("2006-01-02"),
		window.End.UTC().Format("2006-01-02"))
	var b strings.Builder
	fmt.Fprintf(&b, "query {\n  orders(first: %d, query: %q%s) {", pageSize, filter, afterClause)
	b.WriteString(ordersQueryFields)
	b.WriteString("\n  }\n}")
	return b.String()
}
