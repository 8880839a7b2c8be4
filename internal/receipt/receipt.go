// Package receipt renders an order as fixed-width text for thermal printers.
package receipt

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// Paper is a supported roll width.
type Paper struct {
	Name    string
	Columns int
	// FontScale is applied by the print sink; the text itself is laid out in Columns.
	FontScale float64
}

var (
	Paper58mm = Paper{Name: "58mm", Columns: 32, FontScale: 0.85}
	Paper80mm = Paper{Name: "80mm", Columns: 48, FontScale: 1.0}
)

// PaperByName returns the paper for "58mm" or "80mm".
func PaperByName(name string) (Paper, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "58", "58mm":
		return Paper58mm, nil
	case "80", "80mm":
		return Paper80mm, nil
	}
	return Paper{}, fmt.Errorf("receipt: unknown paper %q", name)
}

type Options struct {
	Paper Paper
	// ASCII strips accents for printers without a UTF-8 code page.
	ASCII bool
	// Location is used for the order time. Nil means UTC.
	Location *time.Location
}

// Render lays out the receipt. Every line is at most Paper.Columns runes wide
// and the text ends with a newline.
func Render(o domain.Order, opts Options) string {
	if opts.Paper.Columns <= 0 {
		opts.Paper = Paper58mm
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	w := &writer{width: opts.Paper.Columns}

	w.center(strings.ToUpper(o.RestaurantName))
	w.rule('=')
	w.text("Pedido #" + o.ShortID())
	w.text(o.CreatedAt.In(loc).Format("02/01/2006 15:04"))
	w.rule('-')

	for _, it := range o.Items {
		w.pair(fmt.Sprintf("%dx %s", it.Quantity, it.Name), it.LineTotal().String())
		if it.Description != "" {
			w.indented(it.Description, 3)
		}
	}
	w.rule('-')

	w.pair("Subtotal", o.Subtotal.String())
	if o.DiscountAmount > 0 {
		w.pair("Desconto", (-o.DiscountAmount).String())
	}
	w.pair("Taxa de entrega", o.DeliveryFee.String())
	w.pair("TOTAL", o.TotalPrice.String())
	w.rule('-')

	w.text("Pagamento: " + o.PaymentMethod)
	if paid := o.PaidSoFar(); paid > 0 {
		w.pair("Pago", paid.String())
		w.pair("Restante", o.Balance().String())
	}
	w.text("Cliente: " + o.CustomerName)
	if o.CustomerPhone != "" {
		w.text("Tel: " + o.CustomerPhone)
	}
	if o.CustomerAddress != "" {
		w.text("End: " + o.CustomerAddress)
	}
	w.rule('=')

	out := w.String()
	if opts.ASCII {
		out = FoldASCII(out)
	}
	return out
}

// FoldASCII removes diacritics ("Guaraná" -> "Guarana") and replaces any
// remaining non-ASCII rune with '?'.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}
		return r
	}, folded)
}

type writer struct {
	width int
	b     strings.Builder
}

func (w *writer) String() string { return w.b.String() }

func (w *writer) line(s string) {
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *writer) rule(c rune) {
	w.line(strings.Repeat(string(c), w.width))
}

func (w *writer) center(s string) {
	for _, l := range wrap(s, w.width) {
		pad := (w.width - runeLen(l)) / 2
		w.line(strings.Repeat(" ", pad) + l)
	}
}

func (w *writer) text(s string) {
	for _, l := range wrap(s, w.width) {
		w.line(l)
	}
}

func (w *writer) indented(s string, n int) {
	for _, l := range wrap(s, w.width-n) {
		w.line(strings.Repeat(" ", n) + l)
	}
}

// pair prints left and right on one line, right-aligned. A left side too long
// to share the line wraps, and the amount goes on its last line.
func (w *writer) pair(left, right string) {
	room := w.width - runeLen(right) - 1
	if room < 1 {
		w.text(left)
		w.line(strings.Repeat(" ", max(0, w.width-runeLen(right))) + right)
		return
	}

	lines := wrap(left, room)
	for _, l := range lines[:len(lines)-1] {
		w.line(l)
	}
	last := lines[len(lines)-1]
	w.line(last + strings.Repeat(" ", w.width-runeLen(last)-runeLen(right)) + right)
}

// wrap breaks s into lines of at most width runes, on spaces when possible.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var (
		lines []string
		cur   string
	)
	for _, word := range words {
		for runeLen(word) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			head, tail := splitRunes(word, width)
			lines = append(lines, head)
			word = tail
		}
		switch {
		case cur == "":
			cur = word
		case runeLen(cur)+1+runeLen(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" || len(lines) == 0 {
		lines = append(lines, cur)
	}
	return lines
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
