package intelhive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/dispatch"
	"github.com/intelhive/intelhive/manager"
	"github.com/intelhive/intelhive/responder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndEngagementAndDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received *core.Report
	)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var report core.Report
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		mu.Lock()
		received = &report
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	stub := responder.NewStub()
	stub.SetDefault("Oh my, I don't understand these apps. Can you guide me?")

	hive := New(func(o *Options) {
		o.Generator = stub
		o.DispatchOptions = []func(d *dispatch.Options){func(d *dispatch.Options) {
			d.RequireHTTPS = false
			d.BaseDelay = time.Millisecond
		}}
	})
	defer hive.Close()
	ctx := context.Background()

	sess, err := hive.CreateSession(ctx, manager.CreateSessionInput{
		Credential:  "key-1",
		CallbackURL: callback.URL,
	})
	require.NoError(t, err)

	res, err := hive.SubmitMessage(ctx, "key-1", sess.ID, "I need your bank OTP urgently")
	require.NoError(t, err)
	assert.Equal(t, core.StatusEngaged, res.Status)
	assert.NotEmpty(t, res.Reply)

	_, err = hive.SubmitMessage(ctx, "key-1", sess.ID, "My UPI ID is scammer@paytm")
	require.NoError(t, err)

	report, err := hive.Terminate(ctx, "key-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CategoryUPIFraud, report.Classification)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, sess.ID, received.SessionID)
	assert.Equal(t, core.CategoryUPIFraud, received.Classification)
	assert.Equal(t, []string{"scammer@paytm"}, received.Extracted.UPIIDs)
	assert.Equal(t, 2, received.Conversation.TotalTurns)

	stored, err := hive.Store().Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusArchived, stored.Status)
	assert.Equal(t, core.DeliveryDelivered, stored.Callback.LastOutcome)
}

func TestResumeAfterRestart(t *testing.T) {
	var hits int
	var mu sync.Mutex
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	// First process terminates a session but never delivers its report.
	first := New()
	sess, err := first.CreateSession(context.Background(), manager.CreateSessionInput{
		Credential:  "key-1",
		CallbackURL: callback.URL,
	})
	require.NoError(t, err)
	sharedStore := first.Store()

	ended := time.Now().UTC()
	stored, err := sharedStore.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	stored.Status = core.StatusTerminated
	stored.EndedAt = &ended
	stored.Callback = &core.CallbackRecord{LastOutcome: core.DeliveryPending}
	require.NoError(t, sharedStore.Save(context.Background(), stored))
	first.Close()

	// Second process resumes from the same store.
	second := New(func(o *Options) {
		o.SessionStore = sharedStore
		o.DispatchOptions = []func(d *dispatch.Options){func(d *dispatch.Options) {
			d.RequireHTTPS = false
			d.BaseDelay = time.Millisecond
		}}
	})
	defer second.Close()
	require.NoError(t, second.Resume(context.Background()))

	require.Eventually(t, func() bool {
		got, err := sharedStore.Get(context.Background(), sess.ID)
		return err == nil && got.Status == core.StatusArchived
	}, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits)
}
