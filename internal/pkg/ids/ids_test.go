package ids

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_PrefixAndValidity(t *testing.T) {
	tests := []string{PrefixNotification, PrefixPreferences, PrefixPushToken, PrefixMessage}
	for _, prefix := range tests {
		t.Run(prefix, func(t *testing.T) {
			id := New(prefix)
			assert.True(t, HasPrefix(id, prefix), id)
			assert.False(t, HasPrefix(id, "zzz"))
		})
	}
}

func TestNew_MonotonicWithinProcess(t *testing.T) {
	generated := make([]string, 200)
	for i := range generated {
		generated[i] = New(PrefixNotification)
	}
	assert.True(t, sort.StringsAreSorted(generated))
}

func TestHasPrefix_RejectsGarbage(t *testing.T) {
	assert.False(t, HasPrefix("ntf_not-a-ulid", PrefixNotification))
	assert.False(t, HasPrefix("ntf", PrefixNotification))
}
