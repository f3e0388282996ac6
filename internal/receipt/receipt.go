// Package receipt renders a sale into the ESC/POS byte stream a thermal
// receipt printer consumes, and splits that stream into link-sized
// chunks for BLE transmission.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ESC/POS control sequences understood by common thermal printers.
// The encoder emits them verbatim; it never interprets them.
var (
	boldOn     = []byte{0x1b, 'E', 0x01}
	boldOff    = []byte{0x1b, 'E', 0x00}
	sizeDouble = []byte{0x1b, '!', 0x30} // double width + double height
	sizeNormal = []byte{0x1b, '!', 0x00}
)

const (
	// lineWidth is the column count of a 58mm printer in font A.
	lineWidth = 48
	// nameBudget is the longest item name rendered verbatim; longer
	// names are cut to nameTruncated runes plus an ellipsis.
	nameBudget    = 30
	nameTruncated = 27
	// feedLines pushes the printed receipt past the tear bar.
	feedLines = 5
)

// Sale is the header of one recorded sale. The encoder only reads it.
type Sale struct {
	ID       int64
	Time     time.Time
	Customer string
	Total    float64
}

// LineItem is one sold product line. Order is preserved on the receipt.
type LineItem struct {
	Name      string
	Quantity  int
	UnitPrice float64
}

// Options controls the fixed text of the receipt.
type Options struct {
	Vendor   string // header line, printed bold and double-sized
	Currency string // prefix for money values, e.g. "R$"
}

// DefaultOptions returns the vendor defaults.
func DefaultOptions() Options {
	return Options{
		Vendor:   "TOZZO BURGER",
		Currency: "R$",
	}
}

// EncodingError reports malformed encoder input. It indicates a caller
// bug, not a transient condition.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return "receipt: " + e.Reason
}

// Encode renders sale and its items into a printable payload.
// It is deterministic and performs no I/O. The returned bytes contain
// the vendor header, a sale metadata block, one line per item in input
// order, a bold total computed as the sum of quantity*unitPrice, and
// trailing paper feed.
func Encode(sale Sale, items []LineItem, opts Options) ([]byte, error) {
	if err := validate(sale, items); err != nil {
		return nil, err
	}
	if opts.Vendor == "" {
		opts.Vendor = DefaultOptions().Vendor
	}
	if opts.Currency == "" {
		opts.Currency = DefaultOptions().Currency
	}

	var buf bytes.Buffer

	// Vendor header, bold + double size.
	buf.Write(sizeDouble)
	buf.Write(boldOn)
	buf.WriteString(opts.Vendor)
	buf.Write(boldOff)
	buf.Write(sizeNormal)
	buf.WriteString("\n\n")

	// Sale metadata.
	buf.WriteString(divider("Sale Details"))
	fmt.Fprintf(&buf, "Sale: #%d\n", sale.ID)
	if sale.Customer != "" {
		fmt.Fprintf(&buf, "Customer: %s\n", sale.Customer)
	}
	fmt.Fprintf(&buf, "Date: %s at %s\n",
		sale.Time.Format("02/01/2006"), sale.Time.Format("15:04:05"))
	buf.WriteString("\n")
	buf.WriteString(divider("Items"))
	buf.WriteString("\n")

	var total float64
	for _, item := range items {
		writeItem(&buf, item, opts.Currency)
		total += float64(item.Quantity) * item.UnitPrice
	}

	buf.WriteString("\n")
	buf.WriteString(divider("Total"))
	buf.WriteString("\n")
	buf.Write(sizeDouble)
	buf.Write(boldOn)
	fmt.Fprintf(&buf, "TOTAL: %s %.2f", opts.Currency, total)
	buf.Write(boldOff)
	buf.Write(sizeNormal)
	buf.WriteString(strings.Repeat("\n", feedLines))

	return buf.Bytes(), nil
}

// writeItem renders one bold item line, dot-padded so the line total
// lands at the right edge, plus a unit-price sub-line for multi-
// quantity items.
func writeItem(buf *bytes.Buffer, item LineItem, currency string) {
	name := strings.ToUpper(truncateName(item.Name))
	prefix := fmt.Sprintf("( %d x ) ", item.Quantity)
	value := fmt.Sprintf("%s %.2f", currency, float64(item.Quantity)*item.UnitPrice)

	// Pad by rune count, not byte count: the printer advances one
	// column per glyph, and accented names are multibyte in UTF-8.
	pad := lineWidth - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(name) - utf8.RuneCountInString(value)
	if pad < 0 {
		pad = 0
	}

	buf.Write(boldOn)
	buf.WriteString(prefix)
	buf.WriteString(name)
	buf.WriteString(strings.Repeat(".", pad))
	buf.WriteString(value)
	buf.Write(boldOff)
	buf.WriteString("\n")

	if item.Quantity > 1 {
		buf.WriteString("    ")
		buf.Write(boldOn)
		fmt.Fprintf(buf, "Unit price: %s %.2f", currency, item.UnitPrice)
		buf.Write(boldOff)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

// truncateName caps an item name at nameBudget runes, keeping the
// first nameTruncated and appending an ellipsis marker.
func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= nameBudget {
		return name
	}
	return string(runes[:nameTruncated]) + "..."
}

// divider renders a full-width rule with a centered label.
func divider(label string) string {
	text := " " + label + " "
	dashes := lineWidth - utf8.RuneCountInString(text)
	if dashes < 2 {
		return text + "\n"
	}
	left := dashes / 2
	right := dashes - left
	return strings.Repeat("-", left) + text + strings.Repeat("-", right) + "\n"
}

func validate(sale Sale, items []LineItem) error {
	if sale.ID <= 0 {
		return &EncodingError{Reason: fmt.Sprintf("sale id must be positive, got %d", sale.ID)}
	}
	if len(items) == 0 {
		return &EncodingError{Reason: "sale has no line items"}
	}
	for i, item := range items {
		if item.Name == "" {
			return &EncodingError{Reason: fmt.Sprintf("item %d has an empty name", i)}
		}
		if item.Quantity <= 0 {
			return &EncodingError{Reason: fmt.Sprintf("item %d quantity must be positive, got %d", i, item.Quantity)}
		}
		if item.UnitPrice < 0 {
			return &EncodingError{Reason: fmt.Sprintf("item %d unit price must not be negative", i)}
		}
	}
	return nil
}
