package domain

import "time"

// SaleRecord is one day of sales for one product.
type SaleRecord struct {
	Date           time.Time `json:"data"                db:"sale_date"`
	Product        string    `json:"produto"             db:"product"`
	Quantity       int       `json:"quantidade"          db:"quantity"`
	AvgTemperature float64   `json:"temperatura_media"   db:"avg_temperature"`
	Promotion      int       `json:"promocao"            db:"promotion"`
}

// Weekend reports whether the record falls on Saturday or Sunday.
func (s SaleRecord) Weekend() bool {
	return IsWeekend(s.Date)
}

// IsWeekend reports whether t is a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
