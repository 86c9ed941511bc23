package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name, id, want string
	}{
		{"orders queue!", "", "orders_queue_"},
		{"", "q-123", "q-123"},
		{"", "", "unknown"},
		{"already-ok_1", "", "already-ok_1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.name, tt.id))
	}
}

func TestName_Idempotent(t *testing.T) {
	for _, x := range []string{"orders!!", "already-ok", "", "a b c"} {
		once := Name(x, "")
		twice := Name(once, "")
		assert.Equal(t, once, twice)
		assert.Regexp(t, `^[A-Za-z0-9_-]+$|^unknown$`, once)
	}
}

func TestLooksLikeDLQ(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"orders-dlq", true},
		{"orders.DLQ", true},
		{"orders_dead_letter", false},
		{"orders-dead-letter-queue", true},
		{"ordersDeadLetter", true},
		{"orders-dead", true},
		{"orders-dl", true},
		{"orders", false},
		{"order-display", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeDLQ(tt.name), tt.name)
	}
}

func TestLabelValue_Truncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	assert.Len(t, LabelValue(long), 256)
	assert.Equal(t, "short", LabelValue("short"))
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"order-*", "order-123", true},
		{"order-*", "orders", false},
		{"a.b", "axb", false},
		{"a.b", "a.b", true},
		{"order-?23", "order-123", true},
		{"order-?23", "order-1234", false},
		{"*-dlq", "orders-dlq", true},
		{"exact", "exact", true},
		{"exact", "exactish", false},
	}
	for _, tt := range tests {
		got, err := MatchGlob(tt.pattern, tt.name)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.pattern, tt.name)
	}
}

func TestMatchGlob_Memoized(t *testing.T) {
	_, err := MatchGlob("cache-me-*", "cache-me-1")
	assert.NoError(t, err)
	globs.mu.Lock()
	_, ok := globs.cache["cache-me-*"]
	globs.mu.Unlock()
	assert.True(t, ok)
}
