package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestSafeGo(t *testing.T) {
	tests := []struct {
		name string
		fn   func(done chan struct{})
	}{
		{"returns", func(done chan struct{}) { close(done) }},
		{"panics", func(done chan struct{}) {
			close(done)
			panic("boom")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			assert.NotPanics(t, func() {
				SafeGo(arbor.NewLogger(), tt.name, func() { tt.fn(done) })
			})

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("goroutine did not run")
			}
			assert.Eventually(t, func() bool { return GetGoroutineCount() == 0 }, time.Second, 5*time.Millisecond)
		})
	}
}
