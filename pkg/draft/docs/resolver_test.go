package docs

import (
	"io"
	"log"
	"reflect"
	"testing"
)

func newTestResolver() *Resolver {
	return NewResolver(log.New(io.Discard, "", 0))
}

func TestResolverToggle(t *testing.T) {
	r := newTestResolver()
	ref := Reference{ID: 7, Name: "services-agreement.txt", Type: "contract"}

	if !r.Toggle(ref) {
		t.Fatal("first Toggle should select")
	}
	if got := r.IDs(); !reflect.DeepEqual(got, []uint{7}) {
		t.Fatalf("IDs = %v, want [7]", got)
	}

	if r.Toggle(ref) {
		t.Fatal("second Toggle should deselect")
	}
	if got := r.IDs(); len(got) != 0 {
		t.Fatalf("IDs after deselect = %v, want empty", got)
	}
}

func TestResolverCarryDeduplicates(t *testing.T) {
	r := newTestResolver()
	r.Toggle(Reference{ID: 3, Name: "brief.txt"})
	r.Carry([]Reference{
		{ID: 3, Name: "brief.txt"},
		{ID: 9, Name: "exhibit-a.txt"},
		{ID: 1, Name: "transcript.txt"},
	})

	if got := r.IDs(); !reflect.DeepEqual(got, []uint{1, 3, 9}) {
		t.Fatalf("IDs = %v, want [1 3 9] (deduplicated, ascending)", got)
	}
}

func TestResolverReconcile(t *testing.T) {
	r := newTestResolver()
	r.AddPendingUpload("contract.txt")
	r.AddPendingUpload("contract.txt") // duplicate name recorded once
	r.AddPendingUpload("still-indexing.txt")

	stillPending := r.Reconcile([]Reference{
		{ID: 12, Name: "contract.txt", Type: "contract"},
		{ID: 13, Name: "unrelated.txt"},
	})

	if !reflect.DeepEqual(stillPending, []string{"still-indexing.txt"}) {
		t.Fatalf("stillPending = %v", stillPending)
	}
	if got := r.IDs(); !reflect.DeepEqual(got, []uint{12}) {
		t.Fatalf("IDs = %v, want [12]", got)
	}

	// Resolving the same name again yields the same single id.
	r.AddPendingUpload("contract.txt")
	r.Reconcile([]Reference{{ID: 12, Name: "contract.txt"}})
	if got := r.IDs(); !reflect.DeepEqual(got, []uint{12}) {
		t.Fatalf("IDs after re-resolve = %v, want [12]", got)
	}
}

func TestResolverReconcileFirstMatchWins(t *testing.T) {
	r := newTestResolver()
	r.AddPendingUpload("contract.txt")

	r.Reconcile([]Reference{
		{ID: 5, Name: "contract.txt"},
		{ID: 6, Name: "contract.txt"},
	})

	if got := r.IDs(); !reflect.DeepEqual(got, []uint{5}) {
		t.Fatalf("IDs = %v, want first match [5]", got)
	}
}

func TestResolverDropPendingUpload(t *testing.T) {
	r := newTestResolver()
	r.AddPendingUpload("good.txt")
	r.AddPendingUpload("failed.txt")

	r.DropPendingUpload("failed.txt")

	if got := r.Pending(); !reflect.DeepEqual(got, []string{"good.txt"}) {
		t.Fatalf("Pending = %v, want [good.txt]", got)
	}
}

func TestResolverReset(t *testing.T) {
	r := newTestResolver()
	r.Toggle(Reference{ID: 1, Name: "a.txt"})
	r.AddPendingUpload("b.txt")

	r.Reset()

	if len(r.IDs()) != 0 || len(r.Pending()) != 0 {
		t.Fatal("Reset did not clear working set")
	}
}
