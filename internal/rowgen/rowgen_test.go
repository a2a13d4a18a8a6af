package rowgen

import (
	"context"
	"errors"
	"testing"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
	"github.com/rowforge/rowforge/internal/valuegen"
)

func ordersTable() *schema.Table {
	return &schema.Table{
		Schema: "public",
		Name:   "orders",
		Columns: []schema.Column{
			{Name: "id", DataType: "int4", IsPrimaryKey: true},
			{Name: "amount", DataType: "numeric", Size: schema.IntPtr(10), Scale: schema.IntPtr(2)},
			{Name: "note", DataType: "varchar", Nullable: true, Size: schema.IntPtr(20)},
		},
	}
}

func TestGenerateOrders(t *testing.T) {
	g := New(nil, 0, nil)
	rows, err := g.Generate(context.Background(), ordersTable(), 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}

	seen := map[int32]bool{}
	for _, r := range rows {
		if len(r) != 3 {
			t.Fatalf("row has %d keys, want 3", len(r))
		}
		id := r["id"].(int32)
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true

		amount := r["amount"].(valuegen.Decimal)
		if amount.Scale() != 2 {
			t.Errorf("amount scale = %d, want 2", amount.Scale())
		}
		limit, _ := valuegen.ParseDecimal("99999999")
		if amount.Cmp(limit) >= 0 {
			t.Errorf("amount %s not below 10^8 - 1", amount)
		}
		if n, ok := r["note"].(string); !ok || len(n) < 1 || len(n) > 20 {
			t.Errorf("note %v out of range", r["note"])
		}
	}
}

func TestGenerateAvoidsSeededKeys(t *testing.T) {
	table := &schema.Table{
		Name: "small",
		Columns: []schema.Column{
			{Name: "id", DataType: "int2", IsPrimaryKey: true},
		},
	}

	seed := make([]any, 0, 30000)
	for i := -32768; i < -2768; i++ {
		seed = append(seed, int64(i)) // read back as int64, generated as int16
	}
	set := NewUniquenessSet(seed...)

	rows, err := New(nil, 0, nil).Generate(context.Background(), table, 2000, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[int16]bool{}
	for _, r := range rows {
		id := r["id"].(int16)
		if id < -2768 {
			t.Fatalf("generated seeded key %d", id)
		}
		if seen[id] {
			t.Fatalf("duplicate key %d", id)
		}
		seen[id] = true
	}
	if set.Len() != 30000+2000 {
		t.Errorf("set size = %d, want %d", set.Len(), 32000)
	}
}

func TestGenerateRetryCap(t *testing.T) {
	table := &schema.Table{
		Name:    "flags",
		Columns: []schema.Column{{Name: "id", DataType: "bool", IsPrimaryKey: true}},
	}

	_, err := New(nil, 50, nil).Generate(context.Background(), table, 3, nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Column != "id" {
		t.Errorf("column = %q, want id", genErr.Column)
	}

	full := NewUniquenessSet(true, false)
	if _, err := New(nil, 10, nil).Generate(context.Background(), table, 1, full); !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError with exhausted keyspace, got %v", err)
	}
}

func TestGenerateNeverNullForNonNullable(t *testing.T) {
	var cols []schema.Column
	for _, tag := range typemap.ForDatabase("postgresql").SortedTypes() {
		cols = append(cols, schema.Column{Name: tag, DataType: tag})
	}
	table := &schema.Table{Name: "everything", Columns: cols}

	rows, err := New(nil, 0, nil).Generate(context.Background(), table, 50, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range rows {
		for _, c := range cols {
			v, ok := r[c.Name]
			if !ok || v == nil {
				t.Fatalf("column %s (%s) is null", c.Name, c.DataType)
			}
		}
	}
}

func TestGenerateRejectsUnmappedNonNullable(t *testing.T) {
	table := &schema.Table{
		Name: "docs",
		Columns: []schema.Column{
			{Name: "id", DataType: "int4", IsPrimaryKey: true},
			{Name: "body", DataType: "tsvector"},
		},
	}
	_, err := New(nil, 0, nil).Generate(context.Background(), table, 1, nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Column != "body" {
		t.Fatalf("expected GenerationError for body, got %v", err)
	}

	table.Columns[1].Nullable = true
	rows, err := New(nil, 0, nil).Generate(context.Background(), table, 3, nil)
	if err != nil {
		t.Fatalf("nullable unmapped column should generate: %v", err)
	}
	for _, r := range rows {
		if v, ok := r["body"]; !ok || v != nil {
			t.Fatalf("expected explicit nil body, got %v (present=%v)", v, ok)
		}
	}
}

func TestGenerateCompositeKey(t *testing.T) {
	table := &schema.Table{
		Name: "pairs",
		Columns: []schema.Column{
			{Name: "a", DataType: "int4", IsPrimaryKey: true},
			{Name: "b", DataType: "int4", IsPrimaryKey: true},
		},
	}
	_, err := New(nil, 0, nil).Generate(context.Background(), table, 1, nil)
	if !errors.Is(err, schema.ErrCompositeKey) {
		t.Fatalf("expected ErrCompositeKey, got %v", err)
	}
}

func TestGenerateNullPrimaryKeyCollides(t *testing.T) {
	table := &schema.Table{
		Name:    "odd",
		Columns: []schema.Column{{Name: "id", DataType: "tsvector", Nullable: true, IsPrimaryKey: true}},
	}
	rows, err := New(nil, 5, nil).Generate(context.Background(), table, 1, nil)
	if err != nil || len(rows) != 1 {
		t.Fatalf("first null key should be accepted: %v", err)
	}
	if _, err := New(nil, 5, nil).Generate(context.Background(), table, 2, nil); err == nil {
		t.Fatal("second null key should collide")
	}
}

func TestGenerateWithoutPrimaryKey(t *testing.T) {
	table := &schema.Table{
		Name:    "log",
		Columns: []schema.Column{{Name: "ok", DataType: "bool"}},
	}
	rows, err := New(nil, 1, nil).Generate(context.Background(), table, 10, nil)
	if err != nil {
		t.Fatalf("tables without a key never collide: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("expected 10 rows, got %d", len(rows))
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, 0, nil).Generate(ctx, ordersTable(), 10, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateZeroRows(t *testing.T) {
	rows, err := New(nil, 0, nil).Generate(context.Background(), ordersTable(), 0, nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rows and no error, got %d, %v", len(rows), err)
	}
}
