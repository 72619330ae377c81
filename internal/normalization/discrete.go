package normalization

import (
	"market-state-lab/internal/domain"
	"market-state-lab/internal/features"
)

// Discretizer quantizes continuous rows and attaches their state key.
type Discretizer struct {
	schema *features.Schema
	q      *Quantizer
	keys   *KeyBuilder
}

// NewDiscretizer resolves the key columns against schema and builds the quantizer.
func NewDiscretizer(schema *features.Schema, segments, scale int, keyColumns []string) (*Discretizer, error) {
	q, err := NewQuantizer(segments, scale)
	if err != nil {
		return nil, err
	}
	ids, err := schema.KeyColumns(keyColumns)
	if err != nil {
		return nil, err
	}
	return &Discretizer{schema: schema, q: q, keys: NewKeyBuilder(ids, scale)}, nil
}

// Quantizer returns the quantizer in use.
func (d *Discretizer) Quantizer() *Quantizer { return d.q }

// Keys returns the key builder in use.
func (d *Discretizer) Keys() *KeyBuilder { return d.keys }

// Discrete returns a copy of a continuous row with every rangeable column quantized
// and Key set.
func (d *Discretizer) Discrete(row *domain.Row) *domain.Row {
	return Discrete(row, d.schema, d.q, d.keys)
}

// Discrete quantizes the rangeable columns of row and builds its key.
func Discrete(row *domain.Row, schema *features.Schema, q *Quantizer, keys *KeyBuilder) *domain.Row {
	out := row.Clone()
	for _, c := range schema.Rangeable() {
		out.Values[c.ID] = q.Quantize(out.Values[c.ID])
	}
	out.Key = keys.Key(out.Values)
	return out
}
