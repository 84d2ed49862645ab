package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/codec"
	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/query"
	"github.com/dan-strohschein/qbdriver/testutil"
)

func benchRegistry(b *testing.B) *fields.Registry {
	reg, err := fields.NewRegistry(map[string]fields.Decl{
		"label": fields.Bare(8),
		"score": fields.Numeric(12),
		"when":  fields.Date(7),
	})
	if err != nil {
		b.Fatalf("registry: %v", err)
	}
	return reg
}

// BenchmarkCompileQuery measures structured query compilation
func BenchmarkCompileQuery(b *testing.B) {
	c := query.NewCompiler(codec.New(benchRegistry(b)))
	q := query.Where{
		"label": "open",
		"score": query.Cmp{"gte": 10, "lt": 100},
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.Compile(q); err != nil {
			b.Fatalf("compile: %v", err)
		}
	}
}

// BenchmarkEncodeImport measures building and serializing a bulk import
func BenchmarkEncodeImport(b *testing.B) {
	xc := protocol.NewCodec()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		csv := protocol.NewCSVBuilder()
		for j := 0; j < 500; j++ {
			csv.Add([]string{fmt.Sprintf("row %d, with comma", j), "42"})
		}
		req := &protocol.Request{CList: "8.12", Records: csv.Block(), MsInUTC: 1}
		if _, err := xc.EncodeRequest(req); err != nil {
			b.Fatalf("encode: %v", err)
		}
	}
}

// BenchmarkAdd measures a mixed batch write against the in-memory service
func BenchmarkAdd(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("records=%d", size), func(b *testing.B) {
			c, _ := testutil.NewTestClient(b, nil)
			tbl := c.Table(testutil.TestTableDBID, benchRegistry(b))
			recs := make([]client.Record, size)
			for i := range recs {
				if i%10 == 0 {
					recs[i] = client.Record{"label": fmt.Sprintf("single %d", i)}
					continue
				}
				recs[i] = client.Record{"label": fmt.Sprintf("bulk %d", i), "score": i}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := tbl.Add(context.Background(), recs...); err != nil {
					b.Fatalf("add: %v", err)
				}
			}
		})
	}
}

// BenchmarkDelete measures planning and issuing a delete of mixed runs
func BenchmarkDelete(b *testing.B) {
	c, _ := testutil.NewTestClient(b, nil)
	tbl := c.Table(testutil.TestTableDBID, nil)

	rids := make([]int64, 0, 1000)
	for i := int64(1); i <= 1000; i++ {
		if i%7 != 0 {
			rids = append(rids, i*2)
		} else {
			rids = append(rids, i)
		}
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := tbl.Delete(context.Background(), rids); err != nil {
			b.Fatalf("delete: %v", err)
		}
	}
}
