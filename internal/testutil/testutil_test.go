package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/cbf.sweep/internal/monitoring"
)

func TestCaptureLogs(t *testing.T) {
	c := CaptureLogs(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Logf("[sweep] batch %d", i)
		}()
	}
	wg.Wait()
	monitoring.Warnf("[sweep] configuration failed")

	assert.Len(t, c.Lines(), 9)
	assert.Equal(t, 8, c.Count("batch"))
	assert.Equal(t, 1, c.Count("WARNING"))
}

func TestSilenceLogs(t *testing.T) {
	outer := CaptureLogs(t)
	t.Run("silenced", func(t *testing.T) {
		SilenceLogs(t)
		monitoring.Logf("hidden")
	})
	monitoring.Logf("visible")
	assert.Equal(t, []string{"visible"}, outer.Lines())
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}
