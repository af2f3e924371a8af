package pricing

import "math"

// Product is the slice of the catalog the calculator needs. Prices are
// pointers because the backend stores them as nullable columns; a missing
// price rents for free rather than failing the whole quote.
type Product struct {
	ID               int64
	Name             string
	DailyPrice       *float64
	ReplacementValue *float64
	OwnedQty         int
}

// ProductLookup resolves line items against the catalog.
type ProductLookup map[int64]Product

// LineInput is one product/quantity pair selected for a quote.
type LineInput struct {
	ProductID int64 `json:"id_produto"`
	Quantity  int   `json:"quantidade"`
}

// Adjustments are quote-level modifiers applied once, not per line.
// DepositPct is a percentage in the 0-100 range.
type Adjustments struct {
	Freight    float64 `json:"frete"`
	Discount   float64 `json:"desconto"`
	DepositPct float64 `json:"percentual_caucao"`
}

// PricedLine is the priced form of one line item.
type PricedLine struct {
	ProductID        int64   `json:"id_produto"`
	ProductName      string  `json:"nome_produto"`
	Quantity         int     `json:"quantidade"`
	UnitPrice        float64 `json:"valor_unitario"`
	Days             int     `json:"dias_locacao"`
	Subtotal         float64 `json:"valor_total"`
	ReplacementValue float64 `json:"valor_danificacao"`
	Resolved         bool    `json:"-"`
}

// Quote is the full priced breakdown. Callers that only need the grand total
// still receive the whole breakdown so every component stays auditable.
type Quote struct {
	Lines               []PricedLine `json:"itens"`
	Days                int          `json:"dias_locacao"`
	RentalSubtotal      float64      `json:"subtotal"`
	ReplacementSubtotal float64      `json:"total_danificacao"`
	Freight             float64      `json:"frete"`
	Discount            float64      `json:"desconto"`
	DepositAmount       float64      `json:"valor_caucao"`
	GrandTotal          float64      `json:"valor_total"`
}

// Price computes the full quote breakdown for the given lines and period.
//
// The function is pure: it never mutates its inputs and always returns fresh
// slices. Unresolved products and nil prices contribute zero but the line is
// kept, flagged unresolved, so callers can still render it. Quantities below
// zero contribute zero. An unresolved period prices everything at zero.
func Price(lines []LineInput, products ProductLookup, period Period, adj Adjustments) Quote {
	days := period.Days()

	priced := make([]PricedLine, 0, len(lines))
	var rentalSubtotal, replacementSubtotal float64
	for _, line := range lines {
		pl := priceLine(line, products, days)
		priced = append(priced, pl)
		rentalSubtotal += pl.Subtotal
		replacementSubtotal += pl.ReplacementValue
	}

	freight := sanitize(adj.Freight)
	discount := sanitize(adj.Discount)
	deposit := sanitize(rentalSubtotal * sanitize(adj.DepositPct) / 100)

	grand := rentalSubtotal + freight - discount
	if grand < 0 {
		grand = 0
	}

	return Quote{
		Lines:               priced,
		Days:                days,
		RentalSubtotal:      sanitize(rentalSubtotal),
		ReplacementSubtotal: sanitize(replacementSubtotal),
		Freight:             freight,
		Discount:            discount,
		DepositAmount:       deposit,
		GrandTotal:          sanitize(grand),
	}
}

func priceLine(line LineInput, products ProductLookup, days int) PricedLine {
	qty := line.Quantity
	if qty < 0 {
		qty = 0
	}
	product, resolved := products[line.ProductID]
	pl := PricedLine{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Days:      days,
		Resolved:  resolved,
	}
	if !resolved {
		return pl
	}
	pl.ProductName = product.Name
	pl.UnitPrice = derefPrice(product.DailyPrice)
	pl.Subtotal = sanitize(pl.UnitPrice * float64(qty) * float64(days))
	pl.ReplacementValue = sanitize(derefPrice(product.ReplacementValue) * float64(qty))
	return pl
}

func derefPrice(v *float64) float64 {
	if v == nil {
		return 0
	}
	return sanitize(*v)
}

// sanitize coerces NaN and infinities to zero so a single bad monetary field
// can never poison a total.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
