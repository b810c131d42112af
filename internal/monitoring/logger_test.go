package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	var lines []string
	prev := SetLogger(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { SetLogger(prev) })

	Logf("batch %d/%d", 1, 3)
	Warnf("configuration %d failed", 7)
	assert.Equal(t, []string{"batch 1/3", "WARNING: configuration 7 failed"}, lines)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted") })
	assert.Len(t, lines, 2)
}

func TestLogfDefault(t *testing.T) {
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}
