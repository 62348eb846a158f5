package pipeline

import (
	"procparse/internal"
)

func item(name string, qty, price float64) internal.LineItem {
	total := qty * price
	return internal.LineItem{
		Name:          name,
		Qty:           &qty,
		Unit:          "шт",
		Price:         &price,
		Currency:      internal.DefaultCurrency,
		Total:         &total,
		TotalComputed: true,
		Confidence:    0.8,
	}
}

