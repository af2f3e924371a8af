package pricing

// ClientNotFoundName is rendered when a flat line references a client the
// lookup cannot resolve. The group is still produced.
const ClientNotFoundName = "client not found"

// Client is the slice of the client registry the aggregator needs.
type Client struct {
	ID   int64
	Name string
}

// ClientLookup resolves client ids to display data.
type ClientLookup map[int64]Client

// FlatLine is the raw reservation-line shape stored by the backend: one row
// per product per logical reservation, with the quote-level fields duplicated
// onto every row of the group.
type FlatLine struct {
	LineID       int64   `json:"id_item"`
	GroupID      int64   `json:"id_reserva"`
	ClientID     int64   `json:"id_cliente"`
	VenueID      int64   `json:"id_local"`
	ProductID    int64   `json:"id_produto"`
	Quantity     int     `json:"quantidade"`
	Start        string  `json:"data_inicio"`
	End          string  `json:"data_fim"`
	Status       string  `json:"status"`
	Freight      float64 `json:"frete"`
	Discount     float64 `json:"desconto"`
	Observations string  `json:"observacoes"`
}

// AggregatedQuote is one logical quote reassembled from its flat lines.
type AggregatedQuote struct {
	GroupID      int64        `json:"id_reserva"`
	ClientID     int64        `json:"id_cliente"`
	ClientName   string       `json:"nome_cliente"`
	VenueID      int64        `json:"id_local"`
	Start        string       `json:"data_inicio"`
	End          string       `json:"data_fim"`
	Status       string       `json:"status"`
	Freight      float64      `json:"frete"`
	Discount     float64      `json:"desconto"`
	Observations string       `json:"observacoes"`
	Items        []PricedLine `json:"itens"`
	Total        float64      `json:"valor_total"`
}

// Aggregate groups flat reservation lines into one logical quote per group
// id, in first-seen order. Group-level fields come from the first line seen
// for the group; later lines contribute only their product and quantity. All
// lines for a group are expected to carry identical group-level fields and
// the aggregator does not try to reconcile divergence.
//
// Each line is priced individually against the group's period and its rental
// subtotal accumulates into the group total. The inputs are never mutated.
func Aggregate(lines []FlatLine, clients ClientLookup, products ProductLookup) []AggregatedQuote {
	groups := make([]AggregatedQuote, 0)
	index := make(map[int64]int, len(lines))

	for _, line := range lines {
		at, seen := index[line.GroupID]
		if !seen {
			at = len(groups)
			index[line.GroupID] = at
			groups = append(groups, AggregatedQuote{
				GroupID:      line.GroupID,
				ClientID:     line.ClientID,
				ClientName:   resolveClientName(clients, line.ClientID),
				VenueID:      line.VenueID,
				Start:        line.Start,
				End:          line.End,
				Status:       line.Status,
				Freight:      sanitize(line.Freight),
				Discount:     sanitize(line.Discount),
				Observations: line.Observations,
			})
		}

		group := &groups[at]
		period := Period{Start: group.Start, End: group.End}
		quote := Price([]LineInput{{ProductID: line.ProductID, Quantity: line.Quantity}}, products, period, Adjustments{})
		group.Items = append(group.Items, quote.Lines[0])
		group.Total = sanitize(group.Total + quote.RentalSubtotal)
	}

	return groups
}

func resolveClientName(clients ClientLookup, id int64) string {
	if client, ok := clients[id]; ok && client.Name != "" {
		return client.Name
	}
	return ClientNotFoundName
}
