package admission

import (
	"sync"
	"testing"

	"github.com/intelhive/intelhive/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitSessionEnforcesCap(t *testing.T) {
	c := New(Options{MaxConcurrentSessions: 2})

	require.NoError(t, c.AdmitSession())
	require.NoError(t, c.AdmitSession())
	assert.ErrorIs(t, c.AdmitSession(), core.ErrAdmissionRejected)

	c.ReleaseSession()
	assert.NoError(t, c.AdmitSession(), "released slot is reusable")
	assert.Equal(t, int64(2), c.Active())
}

func TestAdmitSessionUnlimitedWhenDisabled(t *testing.T) {
	c := New(Options{MaxConcurrentSessions: 0})
	for i := 0; i < 500; i++ {
		require.NoError(t, c.AdmitSession())
	}
	assert.Equal(t, int64(500), c.Active())
}

func TestConcurrentAdmitsNeverExceedCap(t *testing.T) {
	c := New(Options{MaxConcurrentSessions: 1})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.AdmitSession()
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "exactly one admit wins the single slot")
	assert.Equal(t, 49, rejected)
}

func TestAllowMessageChargesPerCredential(t *testing.T) {
	c := New(Options{MessagesPerHour: 3600, Burst: 2})

	require.NoError(t, c.AllowMessage("key-a"))
	require.NoError(t, c.AllowMessage("key-a"))
	assert.ErrorIs(t, c.AllowMessage("key-a"), core.ErrRateLimited)

	// Budgets are independent across credentials.
	assert.NoError(t, c.AllowMessage("key-b"))
}

func TestAllowMessageDisabled(t *testing.T) {
	c := New(Options{})
	for i := 0; i < 100; i++ {
		require.NoError(t, c.AllowMessage("key-a"))
	}
}
