package guard

import (
	"errors"
	"testing"
)

func TestReentrancyEnterRelease(t *testing.T) {
	var r Reentrancy

	release, err := r.Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	if _, err := r.Enter(); !errors.Is(err, ErrReentrancyDetected) {
		t.Fatalf("expected ErrReentrancyDetected while held, got %v", err)
	}

	release()

	if release2, err := r.Enter(); err != nil {
		t.Fatalf("Enter after release: %v", err)
	} else {
		release2()
	}
}

func TestReentrancyReleasedOnFailurePath(t *testing.T) {
	var r Reentrancy

	func() {
		release, err := r.Enter()
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}
		defer release()
		// simulate a mutator that fails midway
	}()

	if _, err := r.Enter(); err != nil {
		t.Fatalf("expected latch cleared after deferred release, got %v", err)
	}
}

func TestHashlockSetNeverShrinks(t *testing.T) {
	s := NewHashlockSet()
	var h [32]byte
	h[0] = 1

	if s.Contains(h) {
		t.Fatal("fresh set should not contain hashlock")
	}
	s.Add(h)
	if !s.Contains(h) {
		t.Fatal("set should contain hashlock after Add")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	// Adding again must not duplicate or error.
	s.Add(h)
	if s.Len() != 1 {
		t.Errorf("Len after duplicate Add = %d, want 1", s.Len())
	}
}

func TestResolverTableIdempotent(t *testing.T) {
	tbl := NewResolverTable()

	tbl.Set("resolver-1", true)
	tbl.Set("resolver-1", true) // idempotent add
	if got := tbl.List(); len(got) != 1 {
		t.Fatalf("List = %v, want single entry", got)
	}

	if !tbl.IsAuthorized("resolver-1") {
		t.Fatal("expected resolver-1 authorized")
	}

	tbl.Set("resolver-1", false)
	tbl.Set("resolver-1", false) // idempotent remove
	if tbl.IsAuthorized("resolver-1") {
		t.Fatal("expected resolver-1 no longer authorized")
	}
	if got := tbl.List(); len(got) != 0 {
		t.Fatalf("List after removal = %v, want empty", got)
	}
}
