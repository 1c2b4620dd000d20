package action

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkQueue_ProcessAll measures draining a queue filled across every band.
func BenchmarkQueue_ProcessAll(b *testing.B) {
	bands := []Priority{Critical, High, Normal, Low, TagWorker, Analysis, Cleanup}
	noop := func(context.Context) error { return nil }

	for _, size := range []int{16, 256, 1024} {
		b.Run(fmt.Sprintf("actions=%d", size), func(b *testing.B) {
			b.ReportAllocs()
			q := NewQueue()
			actions := make([]RootAction, size)
			for i := range actions {
				actions[i] = New(bands[i%len(bands)], "noop", noop, nil)
			}
			ctx := context.Background()
			for b.Loop() {
				q.EnqueueAll(actions)
				if _, err := q.ProcessAll(ctx, 0); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
