// Package schema resolves an explicit per-type declaration into an immutable
// entity descriptor: topic, partitioning, key columns, and per-column value
// constraints. Resolution is a pure function of the Go type and its Config;
// the result is cached by type identity for the process lifetime.
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
)

// TimestampSemantics selects how the engine interprets a timestamp column.
type TimestampSemantics int

const (
	// EventTime uses the value carried by the record. Default.
	EventTime TimestampSemantics = iota
	// ProcessingTime uses the wall clock at ingestion.
	ProcessingTime
)

func (s TimestampSemantics) String() string {
	if s == ProcessingTime {
		return "processing_time"
	}
	return "event_time"
}

// DecimalSpec fixes the precision and scale of a numeric column.
type DecimalSpec struct {
	Precision int
	Scale     int
}

// TimestampSpec marks a column as the entity's record timestamp.
type TimestampSpec struct {
	Format    string
	Semantics TimestampSemantics
}

// Column annotates one struct field of the declared record type. Field is the
// Go field name; Name overrides the column name, which otherwise comes from
// the field's json tag (or the field name itself).
type Column struct {
	Field     string
	Name      string
	Key       bool
	Decimal   *DecimalSpec
	Timestamp *TimestampSpec
	Default   any
}

// Config is the explicit declaration a caller supplies for a record type.
// Zero Partitions or Replicas defer to the engine defaults.
type Config struct {
	Topic       string
	Partitions  int
	Replicas    int
	ValueFormat string
	Columns     []Column
}

// Property is one resolved column of a descriptor.
type Property struct {
	Name      string
	Field     string
	GoType    reflect.Type
	Key       bool
	Decimal   *DecimalSpec
	Timestamp *TimestampSpec
	Default   any

	index int
}

// Descriptor is the immutable structural description of one entity. Columns
// are ordered by struct field declaration order; key columns keep that order
// too.
type Descriptor struct {
	Topic       string
	Partitions  int
	Replicas    int
	ValueFormat string
	GoType      reflect.Type
	Columns     []Property

	derived bool
}

var (
	cacheMu sync.RWMutex
	cache   = map[reflect.Type]*Descriptor{}
)

// Describe resolves the descriptor for T, caching it by type identity. The
// first declaration of a type wins; later calls return the cached descriptor
// regardless of config, since a type binds to exactly one entity.
func Describe[T any](cfg Config) (*Descriptor, error) {
	return resolveCached(reflect.TypeFor[T](), cfg)
}

// DescribeDerived resolves a descriptor for a derived entity. The name is
// synthesized from context by the caller, so no topic declaration or key
// marking is required on the result type.
func DescribeDerived[T any](name string) (*Descriptor, error) {
	t := reflect.TypeFor[T]()
	desc, err := resolve(t, Config{Topic: name}, true)
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// ResetCache drops every cached descriptor. Test hook.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[reflect.Type]*Descriptor{}
}

func resolveCached(t reflect.Type, cfg Config) (*Descriptor, error) {
	cacheMu.RLock()
	cached, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	desc, err := resolve(t, cfg, false)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached, ok := cache[t]; ok {
		return cached, nil
	}
	cache[t] = desc
	return desc, nil
}

func resolve(t reflect.Type, cfg Config, derived bool) (*Descriptor, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrStructTypeRequired, t)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: type %s", errspkg.ErrMissingTopic, t)
	}

	annotations, err := indexAnnotations(t, cfg.Columns)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		Topic:       cfg.Topic,
		Partitions:  cfg.Partitions,
		Replicas:    cfg.Replicas,
		ValueFormat: cfg.ValueFormat,
		GoType:      t,
		derived:     derived,
	}

	timestampSeen := false
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		prop := Property{
			Name:   columnName(field),
			Field:  field.Name,
			GoType: field.Type,
			index:  i,
		}

		if ann, ok := annotations[field.Name]; ok {
			if ann.Name != "" {
				prop.Name = ann.Name
			}
			prop.Key = ann.Key
			prop.Default = ann.Default
			if ann.Decimal != nil {
				if err := validateDecimal(t, field.Name, *ann.Decimal); err != nil {
					return nil, err
				}
				d := *ann.Decimal
				prop.Decimal = &d
			}
			if ann.Timestamp != nil {
				if timestampSeen {
					return nil, fmt.Errorf("%w: type %s", errspkg.ErrDuplicateTimestamp, t)
				}
				if ann.Timestamp.Format == "" {
					return nil, fmt.Errorf("%w: column %s of %s", errspkg.ErrInvalidTimestamp, prop.Name, t)
				}
				ts := *ann.Timestamp
				prop.Timestamp = &ts
				timestampSeen = true
			}
		}

		desc.Columns = append(desc.Columns, prop)
	}

	if !derived && len(desc.KeyColumns()) == 0 {
		return nil, fmt.Errorf("%w: type %s", errspkg.ErrNoKeyDefined, t)
	}

	return desc, nil
}

func indexAnnotations(t reflect.Type, columns []Column) (map[string]Column, error) {
	annotations := make(map[string]Column, len(columns))
	for _, col := range columns {
		if _, ok := t.FieldByName(col.Field); !ok {
			return nil, fmt.Errorf("%w: %s.%s", errspkg.ErrUnknownField, t, col.Field)
		}
		if _, dup := annotations[col.Field]; dup {
			return nil, fmt.Errorf("%w: %s.%s", errspkg.ErrDuplicateColumn, t, col.Field)
		}
		annotations[col.Field] = col
	}
	return annotations, nil
}

func validateDecimal(t reflect.Type, field string, d DecimalSpec) error {
	if d.Precision < 1 {
		return fmt.Errorf("%w: %s.%s precision %d, want >= 1", errspkg.ErrInvalidPrecision, t, field, d.Precision)
	}
	if d.Scale < 0 || d.Scale > d.Precision {
		return fmt.Errorf("%w: %s.%s scale %d, want 0..%d", errspkg.ErrInvalidPrecision, t, field, d.Scale, d.Precision)
	}
	return nil
}

// columnName falls back from the json tag to the Go field name.
func columnName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

// KeyColumns returns the key properties in declaration order.
func (d *Descriptor) KeyColumns() []Property {
	var keys []Property
	for _, col := range d.Columns {
		if col.Key {
			keys = append(keys, col)
		}
	}
	return keys
}

// TimestampColumn returns the timestamp property, or nil.
func (d *Descriptor) TimestampColumn() *Property {
	for i := range d.Columns {
		if d.Columns[i].Timestamp != nil {
			return &d.Columns[i]
		}
	}
	return nil
}

// Derived reports whether this descriptor belongs to a derived entity.
func (d *Descriptor) Derived() bool {
	return d.derived
}

// RecordKey renders the partition key for a record: the key column values in
// declaration order, joined with ":". It fails when a key column holds its
// zero value, since an unset key would silently repartition the record.
func (d *Descriptor) RecordKey(record any) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", fmt.Errorf("nil record for entity %q", d.Topic)
		}
		v = v.Elem()
	}
	if v.Type() != d.GoType {
		return "", fmt.Errorf("record type %s does not match entity type %s", v.Type(), d.GoType)
	}

	parts := make([]string, 0, 1)
	for _, key := range d.KeyColumns() {
		fv := v.Field(key.index)
		if fv.IsZero() {
			return "", fmt.Errorf("key column %q is unset", key.Name)
		}
		parts = append(parts, fmt.Sprintf("%v", fv.Interface()))
	}
	return strings.Join(parts, ":"), nil
}
