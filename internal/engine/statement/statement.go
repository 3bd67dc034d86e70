// Package statement renders the textual commands sent to the engine. The
// generation is deterministic: identical descriptors always produce identical
// statement text, which the runtime relies on for idempotent redeclaration.
package statement

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
	"github.com/drblury/ksqlflow/internal/engine/schema"
	"github.com/drblury/ksqlflow/internal/engine/windows"
)

var timeType = reflect.TypeOf(time.Time{})

// CreateStream renders the CREATE STREAM statement for a descriptor.
func CreateStream(desc *schema.Descriptor) (string, error) {
	return create("STREAM", desc)
}

// CreateTable renders the CREATE TABLE statement for a descriptor.
func CreateTable(desc *schema.Descriptor) (string, error) {
	return create("TABLE", desc)
}

func create(kind string, desc *schema.Descriptor) (string, error) {
	cols := make([]string, 0, len(desc.Columns))
	for _, col := range desc.Columns {
		rendered, err := renderColumn(col)
		if err != nil {
			return "", err
		}
		cols = append(cols, rendered)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE %s %s (%s) WITH (KAFKA_TOPIC=%s", kind, desc.Topic, strings.Join(cols, ", "), quote(desc.Topic))
	if desc.Partitions > 0 {
		fmt.Fprintf(&b, ", PARTITIONS=%d", desc.Partitions)
	}
	if desc.Replicas > 0 {
		fmt.Fprintf(&b, ", REPLICAS=%d", desc.Replicas)
	}
	if ts := desc.TimestampColumn(); ts != nil {
		fmt.Fprintf(&b, ", TIMESTAMP=%s", quote(ts.Name))
		if ts.Timestamp.Format != "" {
			fmt.Fprintf(&b, ", TIMESTAMP_FORMAT=%s", quote(ts.Timestamp.Format))
		}
	}
	if desc.ValueFormat != "" {
		fmt.Fprintf(&b, ", VALUE_FORMAT=%s", quote(desc.ValueFormat))
	}
	b.WriteString(");")
	return b.String(), nil
}

func renderColumn(col schema.Property) (string, error) {
	sqlType, err := mapType(col)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(col.Name)
	b.WriteByte(' ')
	b.WriteString(sqlType)
	if col.Key {
		b.WriteString(" KEY")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(literal(col.Default))
	}
	return b.String(), nil
}

// mapType is the fixed Go-to-engine type mapping. A column with a declared
// decimal spec always renders as DECIMAL(p,s); a time.Time column renders as
// TIMESTAMP when it carries a timestamp spec with a format, and as an
// epoch-millisecond BIGINT otherwise.
func mapType(col schema.Property) (string, error) {
	if col.Decimal != nil {
		return fmt.Sprintf("DECIMAL(%d,%d)", col.Decimal.Precision, col.Decimal.Scale), nil
	}

	t := col.GoType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		if col.Timestamp != nil && col.Timestamp.Format != "" {
			return "TIMESTAMP", nil
		}
		return "BIGINT", nil
	}

	switch t.Kind() {
	case reflect.String:
		return "VARCHAR", nil
	case reflect.Bool:
		return "BOOLEAN", nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return "INTEGER", nil
	case reflect.Int, reflect.Int64:
		return "BIGINT", nil
	case reflect.Float32, reflect.Float64:
		return "DOUBLE", nil
	default:
		return "", fmt.Errorf("%w: column %s has type %s", errspkg.ErrUnsupportedType, col.Name, col.GoType)
	}
}

// Aggregate is one aggregation expression of a derived table, rendered as
// "<Expr> AS <As>".
type Aggregate struct {
	Expr string
	As   string
}

// Derivation describes a table derived from another stream or table. GroupBy
// order is significant: the engine binds the select list positionally, so the
// rendered column order follows GroupBy exactly, then the aggregates.
type Derivation struct {
	Name       string
	Source     string
	GroupBy    []string
	Aggregates []Aggregate
	Window     windows.Window
}

// CreateTableAs renders the derived-table statement. An aggregation without
// exactly one window is rejected, since the engine cannot scope it.
func CreateTableAs(d Derivation) (string, error) {
	if d.Name == "" {
		return "", fmt.Errorf("%w: derived table has no name", errspkg.ErrMissingTopic)
	}
	if d.Source == "" {
		return "", fmt.Errorf("%w: derived table %s has no source", errspkg.ErrMissingTopic, d.Name)
	}
	if len(d.Aggregates) > 0 && d.Window == nil {
		return "", fmt.Errorf("%w: derived table %s", errspkg.ErrAmbiguousWindow, d.Name)
	}

	selects := make([]string, 0, len(d.GroupBy)+len(d.Aggregates))
	selects = append(selects, d.GroupBy...)
	for _, agg := range d.Aggregates {
		if agg.As != "" {
			selects = append(selects, fmt.Sprintf("%s AS %s", agg.Expr, agg.As))
		} else {
			selects = append(selects, agg.Expr)
		}
	}
	if len(selects) == 0 {
		selects = []string{"*"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s AS SELECT %s FROM %s", d.Name, strings.Join(selects, ", "), d.Source)
	if d.Window != nil {
		fmt.Fprintf(&b, " WINDOW %s", d.Window.Render())
	}
	if len(d.GroupBy) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(d.GroupBy, ", "))
	}
	b.WriteString(" EMIT CHANGES;")
	return b.String(), nil
}

// Insert renders an INSERT INTO statement for one record of the descriptor's
// type. Columns follow declaration order.
func Insert(desc *schema.Descriptor, record any) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", fmt.Errorf("nil record for entity %q", desc.Topic)
		}
		v = v.Elem()
	}
	if v.Type() != desc.GoType {
		return "", fmt.Errorf("record type %s does not match entity type %s", v.Type(), desc.GoType)
	}

	cols := make([]string, 0, len(desc.Columns))
	vals := make([]string, 0, len(desc.Columns))
	for _, col := range desc.Columns {
		field := v.FieldByName(col.Field)
		lit, err := fieldLiteral(col, field)
		if err != nil {
			return "", err
		}
		cols = append(cols, col.Name)
		vals = append(vals, lit)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", desc.Topic, strings.Join(cols, ", "), strings.Join(vals, ", ")), nil
}

// Drop renders the statement removing a stream or table. IfExists makes the
// drop a no-op when the entity is already gone; DeleteTopic removes the
// backing topic with it.
func Drop(kind, name string, deleteTopic bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DROP %s IF EXISTS %s", kind, name)
	if deleteTopic {
		b.WriteString(" DELETE TOPIC")
	}
	b.WriteString(";")
	return b.String()
}

// SelectAll renders the bounded pull query used to materialize a table.
func SelectAll(name string) string {
	return fmt.Sprintf("SELECT * FROM %s;", name)
}

// ShowStreams renders the listing statement for streams.
func ShowStreams() string {
	return "SHOW STREAMS;"
}

// ShowTables renders the listing statement for tables.
func ShowTables() string {
	return "SHOW TABLES;"
}

func fieldLiteral(col schema.Property, v reflect.Value) (string, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "NULL", nil
		}
		v = v.Elem()
	}
	if v.Type() == timeType {
		ts := v.Interface().(time.Time)
		if col.Timestamp != nil && col.Timestamp.Format != "" {
			return quote(ts.UTC().Format(time.RFC3339)), nil
		}
		return strconv.FormatInt(ts.UnixMilli(), 10), nil
	}
	return literal(v.Interface()), nil
}

// literal renders a Go value as an engine literal. Strings are single-quoted
// with embedded quotes doubled.
func literal(v any) string {
	switch val := v.(type) {
	case string:
		return quote(val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
