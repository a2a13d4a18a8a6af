package rowgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rowforge/rowforge/internal/valuegen"
)

const nullKey = "\x00null"

// UniquenessSet tracks primary key values that must not be generated again.
// It is safe for concurrent use.
type UniquenessSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewUniquenessSet returns a set seeded with the given values.
func NewUniquenessSet(values ...any) *UniquenessSet {
	s := &UniquenessSet{keys: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.keys[KeyOf(v)] = struct{}{}
	}
	return s
}

// Add inserts values without reporting collisions.
func (s *UniquenessSet) Add(values ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		s.keys[KeyOf(v)] = struct{}{}
	}
}

// Claim inserts v and reports true, or reports false if v is already present.
func (s *UniquenessSet) Claim(v any) bool {
	k := KeyOf(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// Contains reports whether v is present.
func (s *UniquenessSet) Contains(v any) bool {
	k := KeyOf(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k]
	return ok
}

// Len returns the number of distinct values.
func (s *UniquenessSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// KeyOf returns the canonical comparison key for a primary key value, so that
// an int32 read back from the database equals the int32 or int64 generated for it.
func KeyOf(v any) string {
	switch x := v.(type) {
	case nil:
		return nullKey
	case int:
		return fmt.Sprintf("i:%d", x)
	case int8:
		return fmt.Sprintf("i:%d", x)
	case int16:
		return fmt.Sprintf("i:%d", x)
	case int32:
		return fmt.Sprintf("i:%d", x)
	case int64:
		return fmt.Sprintf("i:%d", x)
	case uint:
		return fmt.Sprintf("i:%d", x)
	case uint8:
		return fmt.Sprintf("i:%d", x)
	case uint16:
		return fmt.Sprintf("i:%d", x)
	case uint32:
		return fmt.Sprintf("i:%d", x)
	case uint64:
		return fmt.Sprintf("i:%d", x)
	case float32:
		return fmt.Sprintf("f:%v", x)
	case float64:
		return fmt.Sprintf("f:%v", x)
	case bool:
		return fmt.Sprintf("B:%t", x)
	case string:
		return "s:" + x
	case []byte:
		return "b:" + string(x)
	case [16]byte:
		return "s:" + uuid.UUID(x).String()
	case uuid.UUID:
		return "s:" + x.String()
	case valuegen.Decimal:
		return "d:" + x.String()
	case valuegen.Date:
		return "t:" + x.Time().Format(time.RFC3339Nano)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return "s:" + x.String()
	default:
		return fmt.Sprintf("v:%v", x)
	}
}
