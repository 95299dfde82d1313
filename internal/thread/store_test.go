package thread

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_SetGetDelete(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get("U1_1"); ok {
		t.Fatal("Get() on empty store reported a handle")
	}

	s.Set("U1_1", "1700000000.000100")
	if got, ok := s.Get("U1_1"); !ok || got != "1700000000.000100" {
		t.Errorf("Get() = %q, %v", got, ok)
	}

	s.Set("U1_1", "1700000000.000200")
	if got, _ := s.Get("U1_1"); got != "1700000000.000200" {
		t.Errorf("Set did not replace handle: %q", got)
	}

	s.Delete("U1_1")
	s.Delete("missing")
	if _, ok := s.Get("U1_1"); ok {
		t.Error("handle still present after Delete")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("U%d_1", i)
			s.Set(id, fmt.Sprintf("ts-%d", i))
			if got, ok := s.Get(id); !ok || got != fmt.Sprintf("ts-%d", i) {
				t.Errorf("Get(%s) = %q, %v", id, got, ok)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}
