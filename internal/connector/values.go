package connector

import (
	"strconv"
	"strings"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
	"github.com/rowforge/rowforge/internal/valuegen"
)

// normalizeKey converts a primary key value read back from a driver into the
// Go type the value generators produce for the column, so both compare equal
// in a uniqueness set.
func normalizeKey(kind typemap.Kind, col *schema.Column, v any) any {
	if b, ok := v.([]byte); ok && kind != typemap.KindBytes {
		v = string(b)
	}

	switch kind {
	case typemap.KindTinyInt, typemap.KindSmallInt, typemap.KindMediumInt, typemap.KindInteger, typemap.KindBigInt:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return n
			}
		}
	case typemap.KindNumeric:
		scale := valuegen.DefaultScale
		if col.Scale != nil {
			scale = *col.Scale
		}
		var lit string
		switch x := v.(type) {
		case string:
			lit = x
		case float64:
			lit = strconv.FormatFloat(x, 'f', -1, 64)
		case int64:
			lit = strconv.FormatInt(x, 10)
		case valuegen.Decimal:
			return x.Round(scale)
		}
		if lit != "" {
			if d, err := valuegen.ParseDecimal(lit); err == nil {
				return d.Round(scale)
			}
		}
	}
	return v
}

// parseTypeParams splits a declared type such as "NUMERIC(10, 2)" into its
// normalized name and optional size and scale.
func parseTypeParams(declared string) (name string, size, scale *int) {
	name = typemap.Normalize(declared)
	open := strings.IndexByte(declared, '(')
	if open < 0 {
		return name, nil, nil
	}
	end := strings.IndexByte(declared[open:], ')')
	if end < 0 {
		return name, nil, nil
	}
	parts := strings.Split(declared[open+1:open+end], ",")
	if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
		size = &n
	}
	if len(parts) > 1 {
		if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			scale = &n
		}
	}
	return name, size, scale
}

func nullableInt(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
