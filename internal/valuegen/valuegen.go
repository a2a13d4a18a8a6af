// Package valuegen maps column descriptors to random value generators.
package valuegen

import (
	crand "crypto/rand"
	"fmt"
	"math"
	"math/big"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
)

const (
	DefaultVarcharSize = 50
	DefaultPrecision   = 10
	DefaultScale       = 2

	textSize      = math.MaxInt32 - 1
	bytesLen      = 16
	dateYears     = 20
	timestampDays = 365
)

// Generator produces one value per call.
type Generator interface {
	Next() any
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() any

func (f GeneratorFunc) Next() any { return f() }

// Null always yields nil. It backs every unmapped type.
var Null Generator = GeneratorFunc(func() any { return nil })

// Registry resolves columns to generators using a TypeMap.
type Registry struct {
	types *typemap.TypeMap
	now   func() time.Time
}

// NewRegistry creates a registry over the given type map. A nil map uses the PostgreSQL defaults.
func NewRegistry(tm *typemap.TypeMap) *Registry {
	if tm == nil {
		tm = typemap.ForDatabase("postgresql")
	}
	return &Registry{types: tm, now: time.Now}
}

// WithClock returns a copy of the registry that uses now as the time source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	cp := *r
	cp.now = now
	return &cp
}

// Kind returns the logical kind for a column's type tag.
func (r *Registry) Kind(col schema.Column) typemap.Kind {
	return r.types.Resolve(col.DataType)
}

// Resolve returns a fresh generator for the column. It never fails; unmapped
// types resolve to Null.
func (r *Registry) Resolve(col schema.Column) Generator {
	switch kind := r.Kind(col); kind {
	case typemap.KindTinyInt, typemap.KindSmallInt, typemap.KindMediumInt, typemap.KindInteger, typemap.KindBigInt:
		return integerKind(kind, col.Unsigned || typemap.IsUnsigned(col.DataType))
	case typemap.KindNumeric:
		scale := DefaultScale
		if col.Scale != nil && *col.Scale >= 0 {
			scale = *col.Scale
		}
		return numeric(intOr(col.Size, DefaultPrecision), scale)
	case typemap.KindVarchar:
		return varchar(intOr(col.Size, DefaultVarcharSize))
	case typemap.KindText:
		return varchar(textSize)
	case typemap.KindDate:
		return r.date()
	case typemap.KindTimestamp:
		return r.timestamp()
	case typemap.KindBoolean:
		return GeneratorFunc(func() any { return rand.IntN(2) == 1 })
	case typemap.KindBytes:
		return GeneratorFunc(randomBytes)
	case typemap.KindUUID:
		return GeneratorFunc(func() any { return uuid.NewString() })
	case typemap.KindFloat:
		return GeneratorFunc(func() any { return rand.Float64() * 1e6 })
	case typemap.KindTime:
		return GeneratorFunc(clockTime)
	default:
		return Null
	}
}

func intOr(p *int, def int) int {
	if p == nil || *p <= 0 {
		return def
	}
	return *p
}

// integerKind picks the range for an integer kind. Unsigned columns draw
// from [0, 2^bits), except bigint which stays within int64.
func integerKind(kind typemap.Kind, unsigned bool) Generator {
	if unsigned {
		switch kind {
		case typemap.KindTinyInt:
			return intRange(0, 1<<8)
		case typemap.KindSmallInt:
			return intRange(0, 1<<16)
		case typemap.KindMediumInt:
			return intRange(0, 1<<24)
		case typemap.KindInteger:
			return intRange(0, 1<<32)
		default:
			return intRange(0, math.MaxInt64)
		}
	}
	switch kind {
	case typemap.KindTinyInt:
		return intRange(math.MinInt8, math.MaxInt8+1)
	case typemap.KindSmallInt:
		return intRange(math.MinInt16, math.MaxInt16)
	case typemap.KindMediumInt:
		return intRange(-1<<23, 1<<23)
	case typemap.KindInteger:
		return intRange(-math.MaxInt32, math.MaxInt32)
	default:
		return GeneratorFunc(bigInt)
	}
}

// intRange draws from [lo, hi) and types the value as the narrowest of
// int16, int32 and int64 that holds the range.
func intRange(lo, hi int64) Generator {
	span := hi - lo
	switch {
	case lo >= math.MinInt16 && hi-1 <= math.MaxInt16:
		return GeneratorFunc(func() any { return int16(lo + rand.Int64N(span)) })
	case lo >= math.MinInt32 && hi-1 <= math.MaxInt32:
		return GeneratorFunc(func() any { return int32(lo + rand.Int64N(span)) })
	default:
		return GeneratorFunc(func() any { return lo + rand.Int64N(span) })
	}
}

// bigInt draws uniformly from [-9223372036854775807, 9223372036854775807).
// The span is 2^64-2, so draws of the two top uint64 values are rejected.
func bigInt() any {
	const span = math.MaxUint64 - 1
	lo := int64(-math.MaxInt64)
	for {
		r := rand.Uint64()
		if r < span {
			return int64(uint64(lo) + r)
		}
	}
}

// numeric returns decimals whose magnitude is below 10^(precision-scale)-1,
// rounded half-up to scale digits.
func numeric(precision, scale int) Generator {
	if scale > precision {
		scale = precision
	}
	bound := new(big.Int).Sub(pow10(precision-scale), big.NewInt(1))
	limit := new(big.Int).Mul(bound, pow10(scale))
	if limit.Sign() <= 0 {
		// precision == scale: only a fractional part is available.
		limit = pow10(scale)
	}
	return GeneratorFunc(func() any {
		u, _ := crand.Int(crand.Reader, limit)
		return NewDecimal(u, scale).Round(scale)
	})
}

// varchar returns "val_<uuid hex>" tokens truncated to a random length in [1, size].
func varchar(size int) Generator {
	return GeneratorFunc(func() any {
		token := "val_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		n := 1 + rand.IntN(size)
		if n < len(token) {
			return token[:n]
		}
		return token
	})
}

func (r *Registry) date() Generator {
	return GeneratorFunc(func() any {
		end := NewDate(r.now()).Time()
		start := end.AddDate(-dateYears, 0, 0)
		days := int(end.Sub(start).Hours() / 24)
		return NewDate(start.AddDate(0, 0, rand.IntN(days+1)))
	})
}

func (r *Registry) timestamp() Generator {
	return GeneratorFunc(func() any {
		ts := r.now().UTC().AddDate(0, 0, -rand.IntN(timestampDays))
		return ts.Truncate(time.Microsecond)
	})
}

func randomBytes() any {
	b := make([]byte, bytesLen)
	_, _ = crand.Read(b)
	return b
}

func clockTime() any {
	s := rand.IntN(24 * 60 * 60)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}
