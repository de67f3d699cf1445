package walker

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
)

func benchStore(n, width int) *record.Store {
	out := make([]record.Row, 0, n)
	for i := 0; i < n; i++ {
		number := fmt.Sprintf("%07d", i)
		if width > 0 {
			number = fmt.Sprintf("%02d%05d", 40+i%8, i/8)
		}
		out = append(out, record.Row{
			record.ColumnNumber:     number,
			record.ColumnContactKey: fmt.Sprintf("contact-%d", i%(n/2)),
		})
	}
	return record.NewStore(out, width)
}

// BenchmarkFlatRun measures a full 16-position flat draw over 50 000 records.
func BenchmarkFlatRun(b *testing.B) {
	store := benchStore(50000, 0)
	w := New(FlatConfig())
	req := Request{DrawnNumber: "0031337"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := w.Run(store, req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPartitionedRun measures a 10-position series draw over 50 000
// records spread across 8 series.
func BenchmarkPartitionedRun(b *testing.B) {
	store := benchStore(50000, DefaultPartitionWidth)
	w := New(PartitionedConfig())
	req := Request{DrawnPartition: "44", DrawnNumber: "03000"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := w.Run(store, req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFlatRunParallel measures concurrent draws over one shared store.
func BenchmarkFlatRunParallel(b *testing.B) {
	store := benchStore(50000, 0)
	w := New(FlatConfig())

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := w.Run(store, Request{DrawnNumber: "0040000"}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
