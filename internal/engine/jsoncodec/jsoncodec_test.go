package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type testRecord struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testRecord{OrderID: "o-1", Amount: 12.5}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out testRecord
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"order_id\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	record := testRecord{OrderID: "o-2", Amount: 3}

	if err := Encode(buf, record); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded testRecord
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != record {
		t.Fatalf("expected decoded record to match, got %#v", decoded)
	}
}
