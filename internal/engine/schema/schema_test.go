package schema

import (
	"errors"
	"testing"
	"time"

	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
)

type order struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Amount     float64   `json:"amount"`
	OrderTime  time.Time `json:"order_time"`
}

func orderConfig() Config {
	return Config{
		Topic:      "orders",
		Partitions: 12,
		Replicas:   3,
		Columns: []Column{
			{Field: "OrderID", Key: true},
			{Field: "Amount", Decimal: &DecimalSpec{Precision: 18, Scale: 2}},
			{Field: "OrderTime", Timestamp: &TimestampSpec{Format: "yyyy-MM-dd'T'HH:mm:ssX"}},
		},
	}
}

func TestDescribeResolvesColumns(t *testing.T) {
	ResetCache()
	desc, err := Describe[order](orderConfig())
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	if desc.Topic != "orders" || desc.Partitions != 12 || desc.Replicas != 3 {
		t.Fatalf("unexpected entity settings: %+v", desc)
	}

	wantNames := []string{"order_id", "customer_id", "amount", "order_time"}
	if len(desc.Columns) != len(wantNames) {
		t.Fatalf("expected %d columns, got %d", len(wantNames), len(desc.Columns))
	}
	for i, want := range wantNames {
		if desc.Columns[i].Name != want {
			t.Errorf("column %d = %q, want %q", i, desc.Columns[i].Name, want)
		}
	}

	keys := desc.KeyColumns()
	if len(keys) != 1 || keys[0].Name != "order_id" {
		t.Fatalf("unexpected key columns: %+v", keys)
	}

	ts := desc.TimestampColumn()
	if ts == nil || ts.Name != "order_time" {
		t.Fatalf("unexpected timestamp column: %+v", ts)
	}
	if ts.Timestamp.Semantics != EventTime {
		t.Fatalf("expected EventTime default, got %v", ts.Timestamp.Semantics)
	}

	amount := desc.Columns[2]
	if amount.Decimal == nil || amount.Decimal.Precision != 18 || amount.Decimal.Scale != 2 {
		t.Fatalf("unexpected decimal spec: %+v", amount.Decimal)
	}
}

func TestDescribeCachesByTypeIdentity(t *testing.T) {
	ResetCache()
	first, err := Describe[order](orderConfig())
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	// A second declaration of the same type returns the cached descriptor.
	second, err := Describe[order](Config{Topic: "other"})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached descriptor instance")
	}
	if second.Topic != "orders" {
		t.Fatalf("cached descriptor mutated: %q", second.Topic)
	}
}

func TestDescribeRequiresTopic(t *testing.T) {
	ResetCache()
	_, err := Describe[order](Config{Columns: []Column{{Field: "OrderID", Key: true}}})
	if !errors.Is(err, errspkg.ErrMissingTopic) {
		t.Fatalf("expected ErrMissingTopic, got %v", err)
	}
}

func TestDescribeRequiresKey(t *testing.T) {
	ResetCache()
	_, err := Describe[order](Config{Topic: "orders"})
	if !errors.Is(err, errspkg.ErrNoKeyDefined) {
		t.Fatalf("expected ErrNoKeyDefined, got %v", err)
	}
}

func TestDescribeRejectsInvalidPrecision(t *testing.T) {
	cases := []DecimalSpec{
		{Precision: 0, Scale: 0},
		{Precision: -1, Scale: 0},
		{Precision: 4, Scale: 5},
		{Precision: 4, Scale: -1},
	}
	for _, spec := range cases {
		ResetCache()
		cfg := Config{
			Topic: "orders",
			Columns: []Column{
				{Field: "OrderID", Key: true},
				{Field: "Amount", Decimal: &spec},
			},
		}
		if _, err := Describe[order](cfg); !errors.Is(err, errspkg.ErrInvalidPrecision) {
			t.Errorf("decimal %+v: expected ErrInvalidPrecision, got %v", spec, err)
		}
	}
}

func TestDescribeRejectsSecondTimestamp(t *testing.T) {
	ResetCache()
	cfg := Config{
		Topic: "orders",
		Columns: []Column{
			{Field: "OrderID", Key: true},
			{Field: "OrderTime", Timestamp: &TimestampSpec{Format: "epoch"}},
			{Field: "CustomerID", Timestamp: &TimestampSpec{Format: "epoch"}},
		},
	}
	if _, err := Describe[order](cfg); !errors.Is(err, errspkg.ErrDuplicateTimestamp) {
		t.Fatalf("expected ErrDuplicateTimestamp, got %v", err)
	}
}

func TestDescribeRejectsEmptyTimestampFormat(t *testing.T) {
	ResetCache()
	cfg := Config{
		Topic: "orders",
		Columns: []Column{
			{Field: "OrderID", Key: true},
			{Field: "OrderTime", Timestamp: &TimestampSpec{}},
		},
	}
	if _, err := Describe[order](cfg); !errors.Is(err, errspkg.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestDescribeRejectsUnknownField(t *testing.T) {
	ResetCache()
	cfg := Config{
		Topic:   "orders",
		Columns: []Column{{Field: "Nope", Key: true}},
	}
	if _, err := Describe[order](cfg); !errors.Is(err, errspkg.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestDescribeRejectsDuplicateColumn(t *testing.T) {
	ResetCache()
	cfg := Config{
		Topic: "orders",
		Columns: []Column{
			{Field: "OrderID", Key: true},
			{Field: "OrderID", Key: true},
		},
	}
	if _, err := Describe[order](cfg); !errors.Is(err, errspkg.ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
}

func TestDescribeRejectsNonStruct(t *testing.T) {
	ResetCache()
	if _, err := Describe[int](Config{Topic: "x"}); !errors.Is(err, errspkg.ErrStructTypeRequired) {
		t.Fatalf("expected ErrStructTypeRequired, got %v", err)
	}
}

func TestDescribeDerivedSkipsKeyRequirement(t *testing.T) {
	type revenue struct {
		CustomerID string  `json:"customer_id"`
		Total      float64 `json:"total"`
	}

	desc, err := DescribeDerived[revenue]("revenue_by_customer")
	if err != nil {
		t.Fatalf("DescribeDerived failed: %v", err)
	}
	if desc.Topic != "revenue_by_customer" {
		t.Fatalf("unexpected name: %q", desc.Topic)
	}
	if !desc.Derived() {
		t.Fatal("expected a derived descriptor")
	}
	if len(desc.KeyColumns()) != 0 {
		t.Fatal("derived descriptor should not require key columns")
	}
}

func TestRecordKey(t *testing.T) {
	ResetCache()
	desc, err := Describe[order](orderConfig())
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	key, err := desc.RecordKey(order{OrderID: "o-42", CustomerID: "c-1"})
	if err != nil {
		t.Fatalf("RecordKey failed: %v", err)
	}
	if key != "o-42" {
		t.Fatalf("RecordKey = %q, want %q", key, "o-42")
	}

	if _, err := desc.RecordKey(order{CustomerID: "c-1"}); err == nil {
		t.Fatal("expected error for unset key column")
	}

	if _, err := desc.RecordKey(&order{OrderID: "p"}); err != nil {
		t.Fatalf("pointer record should work: %v", err)
	}
}
