// Package testutil provides shared grid fixtures: a sample product
// dataset, its column set, and a recording error sink.
package testutil

import (
	"fmt"
	"sync"

	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/loader"
)

// SampleColumns returns the column set matching SampleRows.
func SampleColumns() []column.Descriptor {
	return []column.Descriptor{
		{Field: "sku", HeaderName: "SKU"},
		{Field: "price", HeaderName: "Price", Type: column.TypeNumber},
		{Field: "qty", HeaderName: "Qty", Type: column.TypeNumber},
		{Field: "createdAt", HeaderName: "Created"},
	}
}

// SampleRows generates n product rows with stable IDs. SKUs repeat every
// 50 rows and quantities every 13, so filters always find matches.
func SampleRows(n int) []loader.Row {
	rows := make([]loader.Row, n)
	for i := range rows {
		rows[i] = loader.Row{
			"id":        fmt.Sprintf("row-%04d", i),
			"sku":       fmt.Sprintf("SKU-%04d", i%50),
			"price":     float64((i*7)%100) + 0.5,
			"qty":       i % 13,
			"createdAt": fmt.Sprintf("2024-01-%02d", i%28+1),
		}
	}
	return rows
}

// RowIDs extracts each row's "id" field, in order.
func RowIDs(rows []loader.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = fmt.Sprintf("%v", r["id"])
	}
	return ids
}

// Sink records errors handed to Record. Safe for concurrent use.
type Sink struct {
	mu   sync.Mutex
	errs []error
}

// Record appends err; nils are dropped.
func (s *Sink) Record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// Errors returns a copy of the recorded errors.
func (s *Sink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errs))
	copy(out, s.errs)
	return out
}

// Len reports how many errors were recorded.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}
