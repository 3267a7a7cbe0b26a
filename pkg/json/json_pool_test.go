package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	gojson "github.com/goccy/go-json"
)

// Test data structures
type testQuery struct {
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
	Sort     []map[string]string    `json:"sort"`
	Filter   map[string]interface{} `json:"filter"`
}

func generateTestRows(n int) []map[string]interface{} {
	rows := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		rows[i] = map[string]interface{}{
			"id":        fmt.Sprintf("row-%d", i),
			"name":      "Test Row",
			"price":     float64(i) * 1.5,
			"tags":      []string{"tag1", "tag2", "tag3"},
			"in_stock":  i%2 == 0,
			"timestamp": 1234567890,
		}
	}
	return rows
}

// Benchmark standard library json.Marshal
func BenchmarkStdMarshal(b *testing.B) {
	rows := generateTestRows(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for _, row := range rows {
			_, err := json.Marshal(row)
			if err != nil {
				b.Fatal(err)
			}
		}
	}

	b.ReportMetric(float64(len(rows)*b.N), "rows/op")
}

// Benchmark goccy/go-json Marshal
func BenchmarkGoccyMarshal(b *testing.B) {
	rows := generateTestRows(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for _, row := range rows {
			_, err := gojson.Marshal(row)
			if err != nil {
				b.Fatal(err)
			}
		}
	}

	b.ReportMetric(float64(len(rows)*b.N), "rows/op")
}

// Benchmark pooled encoder
func BenchmarkPooledEncoder(b *testing.B) {
	rows := generateTestRows(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		buf := GetBuffer()
		enc := GetEncoder(buf)

		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				b.Fatal(err)
			}
		}

		PutEncoder(enc)
		PutBuffer(buf)
	}

	b.ReportMetric(float64(len(rows)*b.N), "rows/op")
}

// Benchmark streaming encoder
func BenchmarkStreamingEncoder(b *testing.B) {
	rows := generateTestRows(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		enc := NewStreamingEncoder(&buf, false)

		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				b.Fatal(err)
			}
		}

		_ = enc.Close()
	}

	b.ReportMetric(float64(len(rows)*b.N), "rows/op")
}

// Benchmark MarshalRowsArray
func BenchmarkMarshalRowsArray(b *testing.B) {
	rows := generateTestRows(100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := MarshalRowsArray(rows)
		if err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(len(rows)*b.N), "rows/op")
}

// Benchmark canonical marshalling used for cache keys
func BenchmarkMarshalCanonical(b *testing.B) {
	q := &testQuery{
		Page:     2,
		PageSize: 25,
		Sort:     []map[string]string{{"field": "name", "direction": "asc"}},
		Filter:   map[string]interface{}{"status": "active", "price_gt": 10},
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := MarshalCanonical(q)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Test correctness against the standard library
func TestMarshalCorrectness(t *testing.T) {
	row := map[string]interface{}{
		"id":        "test-123",
		"name":      "Test Row",
		"price":     42.5,
		"tags":      []string{"tag1", "tag2"},
		"timestamp": 1234567890,
	}

	stdData, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}

	optData, err := Marshal(row)
	if err != nil {
		t.Fatal(err)
	}

	var stdResult, optResult map[string]interface{}
	if err := json.Unmarshal(stdData, &stdResult); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(optData, &optResult); err != nil {
		t.Fatal(err)
	}

	if stdResult["id"] != optResult["id"] {
		t.Errorf("ID mismatch: %v != %v", stdResult["id"], optResult["id"])
	}
	if stdResult["name"] != optResult["name"] {
		t.Errorf("Name mismatch: %v != %v", stdResult["name"], optResult["name"])
	}
}

// Canonical output must be byte-stable for equal values
func TestMarshalCanonicalStable(t *testing.T) {
	build := func() map[string]interface{} {
		return map[string]interface{}{
			"page":     0,
			"pageSize": 25,
			"filter":   map[string]interface{}{"b": 2, "a": 1, "c": 3},
		}
	}

	first, err := MarshalCanonical(build())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 50; i++ {
		next, err := MarshalCanonical(build())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("canonical form unstable: %s != %s", first, next)
		}
	}

	if n := len(first); n == 0 || first[n-1] == '\n' {
		t.Fatalf("unexpected canonical form: %q", first)
	}
}

func TestEstimateBytes(t *testing.T) {
	rows := generateTestRows(10)

	n := EstimateBytes(rows)
	if n <= 0 {
		t.Fatalf("expected positive estimate, got %d", n)
	}

	data, err := Marshal(rows)
	if err != nil {
		t.Fatal(err)
	}

	// Encoder output differs from Marshal only by the trailing newline
	if diff := n - len(data); diff < 0 || diff > 1 {
		t.Errorf("estimate %d too far from encoded size %d", n, len(data))
	}
}

func TestMarshalRowsArrayEmpty(t *testing.T) {
	data, err := MarshalRowsArray(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("expected empty array, got %s", data)
	}
}

func TestMarshalRowsLines(t *testing.T) {
	rows := []map[string]interface{}{
		{"id": 1},
		{"id": 2},
	}

	data, err := MarshalRowsLines(rows)
	if err != nil {
		t.Fatal(err)
	}

	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte{'\n'})
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}
