package engine

import (
	"sync"
	"testing"
	"time"
)

type batchCollector struct {
	mu      sync.Mutex
	batches []Batch
}

func (c *batchCollector) add(b Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *batchCollector) snapshot() []Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Batch(nil), c.batches...)
}

// waitBatches polls until at least n batches arrived or the deadline passes.
func (c *batchCollector) waitBatches(t *testing.T, n int, deadline time.Duration) []Batch {
	t.Helper()
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		got := c.snapshot()
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d batches, have %d", n, len(c.snapshot()))
	return nil
}

func TestDebouncer_BurstCoalescesIntoOneBatch(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*.pdf"}, []string{"pdfunite {in_files} {out_file}"})
	var c batchCollector
	d := NewDebouncer(50*time.Millisecond, c.add)
	defer d.Stop()

	d.Add(env, "/hot", "/hot/merge/a.pdf")
	d.Add(env, "/hot", "/hot/merge/b.pdf")
	d.Add(env, "/hot", "/hot/merge/c.pdf")

	got := c.waitBatches(t, 1, 2*time.Second)
	if len(got) != 1 {
		t.Fatalf("got %d batches, want 1", len(got))
	}
	want := []string{"/hot/merge/a.pdf", "/hot/merge/b.pdf", "/hot/merge/c.pdf"}
	if len(got[0].Files) != len(want) {
		t.Fatalf("batch files = %v, want %v", got[0].Files, want)
	}
	for i := range want {
		if got[0].Files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q (arrival order)", i, got[0].Files[i], want[i])
		}
	}
	if got[0].Env != env {
		t.Error("batch carries wrong environment")
	}
}

func TestDebouncer_QuietGapSplitsBatches(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(40*time.Millisecond, c.add)
	defer d.Stop()

	d.Add(env, "/hot", "/hot/merge/one")
	c.waitBatches(t, 1, 2*time.Second)
	d.Add(env, "/hot", "/hot/merge/two")
	got := c.waitBatches(t, 2, 2*time.Second)

	if len(got) != 2 {
		t.Fatalf("got %d batches, want 2", len(got))
	}
	if len(got[0].Files) != 1 || got[0].Files[0] != "/hot/merge/one" {
		t.Errorf("first batch = %v, want [one]", got[0].Files)
	}
	if len(got[1].Files) != 1 || got[1].Files[0] != "/hot/merge/two" {
		t.Errorf("second batch = %v, want [two]", got[1].Files)
	}
}

func TestDebouncer_ArrivalRestartsTimer(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(80*time.Millisecond, c.add)
	defer d.Stop()

	// Keep feeding before the window closes; nothing may flush meanwhile.
	for i := 0; i < 4; i++ {
		d.Add(env, "/hot", "/hot/merge/f"+string(rune('a'+i)))
		time.Sleep(30 * time.Millisecond)
	}
	if n := len(c.snapshot()); n != 0 {
		t.Fatalf("flushed %d batches while arrivals kept the timer alive", n)
	}

	got := c.waitBatches(t, 1, 2*time.Second)
	if len(got[0].Files) != 4 {
		t.Errorf("batch size = %d, want 4", len(got[0].Files))
	}
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	envA := mustEnv(t, "a", []string{"*"}, []string{"cat {in_files}"})
	envB := mustEnv(t, "b", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(40*time.Millisecond, c.add)
	defer d.Stop()

	d.Add(envA, "/hot", "/hot/a/x")
	d.Add(envB, "/hot", "/hot/b/y")

	got := c.waitBatches(t, 2, 2*time.Second)
	names := map[string]int{}
	for _, b := range got {
		names[b.Env.Name()] += len(b.Files)
	}
	if names["a"] != 1 || names["b"] != 1 {
		t.Errorf("per-key batches = %v, want one file each for a and b", names)
	}
}

func TestDebouncer_DuplicatePathIgnored(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(40*time.Millisecond, c.add)
	defer d.Stop()

	d.Add(env, "/hot", "/hot/merge/same")
	d.Add(env, "/hot", "/hot/merge/same")
	d.Add(env, "/hot", "/hot/merge/same")

	got := c.waitBatches(t, 1, 2*time.Second)
	if len(got[0].Files) != 1 {
		t.Errorf("batch files = %v, want a single deduplicated entry", got[0].Files)
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(30*time.Millisecond, c.add)

	d.Add(env, "/hot", "/hot/merge/doomed")
	if d.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", d.PendingCount())
	}
	d.Stop()
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount() after Stop = %d, want 0", d.PendingCount())
	}

	time.Sleep(100 * time.Millisecond)
	if n := len(c.snapshot()); n != 0 {
		t.Errorf("flushed %d batches after Stop, want 0", n)
	}

	// Adds after Stop are no-ops.
	d.Add(env, "/hot", "/hot/merge/late")
	if d.PendingCount() != 0 {
		t.Error("Add after Stop should not register a pending batch")
	}
}

func TestDebouncer_DrainSkipsCallback(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(time.Hour, c.add)
	defer d.Stop()

	d.Add(env, "/hot", "/hot/merge/a")
	d.Add(env, "/hot", "/hot/merge/b")

	got := d.Drain()
	if len(got) != 1 || len(got[0].Files) != 2 {
		t.Fatalf("Drain() = %v, want one batch of two files", got)
	}
	if got[0].Env != env {
		t.Error("drained batch carries wrong environment")
	}
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount() after Drain = %d, want 0", d.PendingCount())
	}
	if n := len(c.snapshot()); n != 0 {
		t.Errorf("Drain invoked the flush callback %d times", n)
	}
}

func TestDebouncer_FlushEmitsImmediately(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"}, []string{"cat {in_files}"})
	var c batchCollector
	d := NewDebouncer(time.Hour, c.add)
	defer d.Stop()

	d.Add(env, "/hot", "/hot/merge/a")
	d.Add(env, "/hot", "/hot/merge/b")
	d.Flush()

	got := c.snapshot()
	if len(got) != 1 || len(got[0].Files) != 2 {
		t.Fatalf("Flush() emitted %v, want one batch of two files", got)
	}
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount() after Flush = %d, want 0", d.PendingCount())
	}
}
