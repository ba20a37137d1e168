package builtin

import (
	"taxietl/internal/etlerr"
	"taxietl/internal/table"
)

// FillNull replaces nulls in Column with zero: int64(0) for integer columns,
// 0.0 for float columns. Other kinds, text included, are a TransformError.
type FillNull struct {
	Column string
}

func (f FillNull) Apply(t *table.Table) error {
	c, ok := t.Column(f.Column)
	if !ok {
		return nil
	}
	var zero any
	switch c.Kind {
	case table.KindInt64:
		zero = int64(0)
	case table.KindFloat64:
		zero = float64(0)
	default:
		return etlerr.Newf(etlerr.KindTransform, "fill nulls", "cannot fill %s column %q with zero", c.Kind, f.Column)
	}
	for i, v := range c.Values {
		if v == nil {
			c.Values[i] = zero
		}
	}
	return nil
}
