package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block. Structured facts
// live in the PROPERTIES drawer so they stay searchable.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %s (%s)", strings.ToUpper(t.Side), t.Symbol, shortID(t.PositionID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf(":POSITION_ID: %s\n", t.PositionID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	b.WriteString(fmt.Sprintf(":SIZE: %g\n", t.Size))
	b.WriteString(fmt.Sprintf(":PRICE: %.5f\n", t.Price))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":COST: %.8f\n", t.Cost))
	b.WriteString(fmt.Sprintf(":CASH: %.8f\n", t.Cash))
	if t.Side == "sell" {
		b.WriteString(fmt.Sprintf(":PNL_PCT: %.2f\n", t.PnLPct*100))
	}
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	b.WriteString(fmt.Sprintf(":TIME: %s\n", t.Time.UTC().Format(time.RFC3339)))
	b.WriteString(":END:\n")

	return b.String()
}

// FormatTradesOrg renders multiple fills separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatValuationsOrg renders valuations as an Org table.
func FormatValuationsOrg(vals []ValuationRecord) string {
	var b strings.Builder
	b.WriteString("| time | symbol | bid | cash | open | value |\n")
	b.WriteString("|------+--------+-----+------+------+-------|\n")
	for _, v := range vals {
		b.WriteString(fmt.Sprintf("| %s | %s | %.5f | %.5f | %d | %.5f |\n",
			v.Time.UTC().Format(time.RFC3339), v.Symbol, v.Bid, v.Cash, v.OpenPositions, v.Value))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
