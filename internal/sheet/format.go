package sheet

import "sort"

var currencyColumns = []string{
	"Subtotal",
	"Shipping",
	"Taxes",
	"Total",
	"Lineitem price",
	"Refunded Amount",
}

var numberColumns = []string{
	"Lineitem quantity",
}

// ColumnFormats resolves the standard money and count formats against a
// header. Columns absent from the header are simply skipped, so a trimmed
// destination table formats whatever it does have.
func ColumnFormats(header []string) []ColumnFormat {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	var formats []ColumnFormat
	for _, name := range currencyColumns {
		if i, ok := index[name]; ok {
			formats = append(formats, ColumnFormat{Column: i, Kind: FormatCurrency})
		}
	}
	for _, name := range numberColumns {
		if i, ok := index[name]; ok {
			formats = append(formats, ColumnFormat{Column: i, Kind: FormatNumber})
		}
	}
	return formats
}

// TouchedRanges collapses a write plan's row numbers into the minimal set of
// contiguous ranges, covering updated rows plus the appended block.
func TouchedRanges(plan Plan) []RowRange {
	nums := make([]int, 0, len(plan.Updates)+len(plan.Appends))
	for rowNum := range plan.Updates {
		nums = append(nums, rowNum)
	}
	for i := range plan.Appends {
		nums = append(nums, plan.NextAppendRow+i)
	}
	return contiguousRanges(nums)
}

func contiguousRanges(nums []int) []RowRange {
	if len(nums) == 0 {
		return nil
	}
	sort.Ints(nums)
	var out []RowRange
	current := RowRange{Start: nums[0], End: nums[0]}
	for _, n := range nums[1:] {
		if n == current.End || n == current.End+1 {
			current.End = n
			continue
		}
		out = append(out, current)
		current = RowRange{Start: n, End: n}
	}
	return append(out, current)
}
