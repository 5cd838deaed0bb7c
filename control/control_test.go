package control

import (
	"errors"
	"sync"
	"testing"
)

func TestMetricsCountersAreConcurrent(t *testing.T) {
	mr := NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mr.Add("messages.sent", 1)
			}
		}()
	}
	wg.Wait()
	if got := mr.Counter("messages.sent"); got != 8000 {
		t.Fatalf("counter = %d, want 8000", got)
	}
	mr.Set("sockets.live", 2)
	snap := mr.GetSnapshot()
	if snap["messages.sent"] != int64(8000) || snap["sockets.live"] != 2 {
		t.Fatalf("snapshot = %v", snap)
	}
	if mr.Updated().IsZero() {
		t.Fatal("gauge update time not recorded")
	}
}

func TestConfigStoreValidatesWholeUpdate(t *testing.T) {
	cs := NewConfigStore()
	cs.AddValidator(func(update map[string]any) error {
		if _, ok := update["bad"]; ok {
			return errors.New("bad key")
		}
		return nil
	})
	if err := cs.SetConfig(map[string]any{"good": 1, "bad": 2}); err == nil {
		t.Fatal("update with a rejected key was applied")
	}
	if _, ok := cs.Get("good"); ok {
		t.Fatal("partial update leaked")
	}
	if err := cs.SetConfig(map[string]any{"good": 1}); err != nil {
		t.Fatal(err)
	}
	if v, _ := cs.Get("good"); v != 1 || cs.Version() != 1 {
		t.Fatalf("value=%v version=%d", v, cs.Version())
	}
}

func TestDebugProbesEvaluateOnDump(t *testing.T) {
	dp := NewDebugProbes()
	n := 0
	dp.RegisterProbe("calls", func() any { n++; return n })
	dp.DumpState()
	if got := dp.DumpState()["calls"]; got != 2 {
		t.Fatalf("probe value = %v, want 2", got)
	}
}
