package valuegen

import (
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
)

const samples = 2000

func col(tag string, size, scale *int) schema.Column {
	return schema.Column{Name: "c", DataType: tag, Size: size, Scale: scale}
}

func TestIntegerRanges(t *testing.T) {
	reg := NewRegistry(nil)

	tests := []struct {
		tag    string
		lo, hi int64 // hi exclusive
	}{
		{"int2", -32768, 32767},
		{"int4", -2147483647, 2147483647},
		{"money", -2147483647, 2147483647},
		{"int8", -math.MaxInt64, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			g := reg.Resolve(col(tt.tag, nil, nil))
			for range samples {
				var v int64
				switch n := g.Next().(type) {
				case int16:
					v = int64(n)
				case int32:
					v = int64(n)
				case int64:
					v = n
				default:
					t.Fatalf("unexpected type %T", n)
				}
				if v < tt.lo || v >= tt.hi {
					t.Fatalf("%d outside [%d, %d)", v, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestMySQLIntegerRanges(t *testing.T) {
	reg := NewRegistry(typemap.ForDatabase("mysql"))

	tests := []struct {
		name   string
		column schema.Column
		lo, hi int64 // hi exclusive
	}{
		{"tinyint", schema.Column{DataType: "tinyint"}, -128, 128},
		{"tinyint(1)", schema.Column{DataType: "tinyint(1)"}, -128, 128},
		{"tinyint unsigned", schema.Column{DataType: "tinyint", Unsigned: true}, 0, 256},
		{"smallint unsigned", schema.Column{DataType: "smallint", Unsigned: true}, 0, 65536},
		{"mediumint", schema.Column{DataType: "mediumint"}, -1 << 23, 1 << 23},
		{"mediumint unsigned", schema.Column{DataType: "mediumint", Unsigned: true}, 0, 1 << 24},
		{"int(10) unsigned tag", schema.Column{DataType: "int(10) unsigned"}, 0, 1 << 32},
		{"bigint unsigned", schema.Column{DataType: "bigint", Unsigned: true}, 0, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := reg.Resolve(tt.column)
			for range samples {
				var v int64
				switch n := g.Next().(type) {
				case int16:
					v = int64(n)
				case int32:
					v = int64(n)
				case int64:
					v = n
				default:
					t.Fatalf("unexpected type %T", n)
				}
				if v < tt.lo || v >= tt.hi {
					t.Fatalf("%d outside [%d, %d)", v, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestVarcharLength(t *testing.T) {
	reg := NewRegistry(nil)
	for _, size := range []int{1, 5, 20, 36, 50, 255} {
		g := reg.Resolve(col("varchar", schema.IntPtr(size), nil))
		for range samples {
			s, ok := g.Next().(string)
			if !ok {
				t.Fatal("expected string")
			}
			if len(s) < 1 || len(s) > size {
				t.Fatalf("size %d: length %d out of range", size, len(s))
			}
			if !strings.HasPrefix("val_", s) && !strings.HasPrefix(s, "val_") {
				t.Fatalf("unexpected token %q", s)
			}
		}
	}
}

func TestVarcharDefaultSize(t *testing.T) {
	g := NewRegistry(nil).Resolve(col("character varying", nil, nil))
	for range samples {
		if n := len(g.Next().(string)); n < 1 || n > DefaultVarcharSize {
			t.Fatalf("length %d out of default range", n)
		}
	}
}

func TestTextIsFullToken(t *testing.T) {
	g := NewRegistry(nil).Resolve(col("text", nil, nil))
	long := 0
	for range 100 {
		if len(g.Next().(string)) == 36 {
			long++
		}
	}
	if long < 99 {
		t.Errorf("expected nearly all text values to be full tokens, got %d/100", long)
	}
}

func TestNumericBoundsAndScale(t *testing.T) {
	reg := NewRegistry(nil)

	tests := []struct {
		precision, scale int
	}{
		{10, 2},
		{5, 0},
		{38, 10},
		{4, 4},
	}

	for _, tt := range tests {
		g := reg.Resolve(col("numeric", schema.IntPtr(tt.precision), schema.IntPtr(tt.scale)))
		bound := NewDecimal(new(big.Int).Sub(pow10(tt.precision-tt.scale), big.NewInt(1)), 0)
		for range samples {
			d, ok := g.Next().(Decimal)
			if !ok {
				t.Fatal("expected Decimal")
			}
			if d.Scale() != tt.scale {
				t.Fatalf("scale = %d, want %d", d.Scale(), tt.scale)
			}
			if d.Unscaled().Sign() < 0 {
				t.Fatalf("negative value %s", d)
			}
			if tt.precision > tt.scale && d.Cmp(bound) >= 0 {
				t.Fatalf("%s not below %s", d, bound)
			}
			if !d.Round(tt.scale).Equal(d) {
				t.Fatalf("rounding %s is not idempotent", d)
			}
		}
	}
}

func TestNumericExplicitZeroScale(t *testing.T) {
	g := NewRegistry(nil).Resolve(col("numeric", schema.IntPtr(10), schema.IntPtr(0)))
	bound := NewDecimal(new(big.Int).Sub(pow10(10), big.NewInt(1)), 0)
	whole := 0
	for range samples {
		d := g.Next().(Decimal)
		if d.Scale() != 0 {
			t.Fatalf("numeric(10,0) produced %s with scale %d", d, d.Scale())
		}
		if strings.Contains(d.String(), ".") {
			t.Fatalf("numeric(10,0) produced fractional %s", d)
		}
		if d.Cmp(bound) >= 0 {
			t.Fatalf("%s not below %s", d, bound)
		}
		if d.Cmp(NewDecimal(big.NewInt(100_000_000), 0)) >= 0 {
			whole++
		}
	}
	// values above 10^8 are only reachable when the scale is really 0
	if whole == 0 {
		t.Error("numeric(10,0) never exceeded 10^8")
	}
}

func TestNumericDefaults(t *testing.T) {
	d := NewRegistry(nil).Resolve(col("decimal", nil, nil)).Next().(Decimal)
	if d.Scale() != DefaultScale {
		t.Errorf("default scale = %d, want %d", d.Scale(), DefaultScale)
	}
}

func TestTimestampWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(nil).WithClock(func() time.Time { return now })
	g := reg.Resolve(col("timestamptz", nil, nil))
	for range samples {
		ts := g.Next().(time.Time)
		if ts.After(now) || ts.Before(now.AddDate(0, 0, -364)) {
			t.Fatalf("timestamp %s outside window", ts)
		}
		if ts.Location() != time.UTC {
			t.Fatal("timestamp not in UTC")
		}
	}
}

func TestDateWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(nil).WithClock(func() time.Time { return now })
	g := reg.Resolve(col("date", nil, nil))
	earliest := time.Date(2004, 6, 1, 0, 0, 0, 0, time.UTC)
	for range samples {
		d := g.Next().(Date)
		if d.Time().Before(earliest) || d.Time().After(now) {
			t.Fatalf("date %s outside window", d)
		}
		if d.Time().Hour() != 0 {
			t.Fatal("date not at midnight")
		}
	}
}

func TestOtherKinds(t *testing.T) {
	reg := NewRegistry(nil)

	if _, ok := reg.Resolve(col("bool", nil, nil)).Next().(bool); !ok {
		t.Error("bool should yield bool")
	}
	b, ok := reg.Resolve(col("bytea", nil, nil)).Next().([]byte)
	if !ok || len(b) != 16 {
		t.Errorf("bytea should yield 16 bytes, got %v", b)
	}
	if u, ok := reg.Resolve(col("uuid", nil, nil)).Next().(string); !ok || len(u) != 36 {
		t.Errorf("uuid should yield canonical string, got %v", u)
	}
	if s, ok := reg.Resolve(col("time", nil, nil)).Next().(string); !ok || len(s) != 8 {
		t.Errorf("time should yield HH:MM:SS, got %v", s)
	}
}

func TestUnknownTypeYieldsNull(t *testing.T) {
	reg := NewRegistry(nil)
	c := col("tsvector", nil, nil)
	if reg.Kind(c) != typemap.KindUnknown {
		t.Fatalf("expected unknown kind, got %s", reg.Kind(c))
	}
	g := reg.Resolve(c)
	for range 10 {
		if v := g.Next(); v != nil {
			t.Fatalf("expected nil, got %v", v)
		}
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	reg := NewRegistry(nil)
	if _, ok := reg.Resolve(col("INT4", nil, nil)).Next().(int32); !ok {
		t.Error("INT4 should resolve like int4")
	}
}

func TestResolveWithOverride(t *testing.T) {
	tm := typemap.ForDatabase("postgresql")
	tm.Override("ltree", typemap.KindText)
	if _, ok := NewRegistry(tm).Resolve(col("ltree", nil, nil)).Next().(string); !ok {
		t.Error("override should route ltree to text generator")
	}
}
