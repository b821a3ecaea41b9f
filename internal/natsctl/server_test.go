package natsctl

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestGateWaitsForInflight(t *testing.T) {
	var g requestGate
	require.True(t, g.enter())

	released := make(chan struct{})
	waited := make(chan struct{})
	go func() {
		g.closeAndWait()
		close(waited)
	}()

	go func() {
		<-released
		g.leave()
	}()

	select {
	case <-waited:
		t.Fatal("closeAndWait returned with a request in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(released)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("closeAndWait did not return after the request finished")
	}
}

func TestRequestGateRejectsAfterClose(t *testing.T) {
	var g requestGate
	g.closeAndWait()

	assert.False(t, g.enter())
}

func TestRequestGateConcurrentEnterAndClose(t *testing.T) {
	var g requestGate

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !g.enter() {
					return
				}
				g.leave()
			}
		}()
	}

	g.closeAndWait()
	assert.False(t, g.enter())
	wg.Wait()
}
