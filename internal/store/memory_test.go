package store_test

import (
	"testing"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/store"
	"github.com/AaronLay10/FlowEngine/internal/store/storetest"
)

func TestMemoryConformance(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	storetest.Run(t, store.NewMemory(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}))
}
