package models

type Product struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Categories []string `json:"categories"`
}

// Price returns the display price in major units (cents / 100).
func (p *Product) Price() float64 {
	return float64(p.PriceCents) / 100
}
