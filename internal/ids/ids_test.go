package ids

import (
	"sync"
	"testing"
)

func TestNewProducesUniqueSortedIDs(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if !(a < b) {
		t.Fatalf("expected monotonic ordering: %s >= %s", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids failed validation: %s %s", a, b)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-an-id", "123"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

func TestNewIsSafeForConcurrentUse(t *testing.T) {
	const n = 100
	seen := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- New()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]struct{}, n)
	for id := range seen {
		unique[id] = struct{}{}
	}
	if len(unique) != n {
		t.Fatalf("expected %d unique ids, got %d", n, len(unique))
	}
}
