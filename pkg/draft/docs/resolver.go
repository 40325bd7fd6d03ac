package docs

import (
	"log"
	"sort"
	"sync"
)

// Reference is a canonical pointer to a stored document.
type Reference struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Resolver reconciles user-toggled documents, just-uploaded files (whose ids
// may not exist yet) and ids carried over from elsewhere in the UI into a
// single deduplicated set of document ids for a generation call.
//
// Uniqueness is by id once resolved. While an upload is pending its name
// stands in for an id; Reconcile folds it into the id set as soon as the
// authoritative document list knows it.
type Resolver struct {
	mu       sync.Mutex
	selected map[uint]Reference
	pending  []string
	logger   *log.Logger
}

func NewResolver(logger *log.Logger) *Resolver {
	return &Resolver{
		selected: make(map[uint]Reference),
		logger:   logger,
	}
}

// Toggle flips a document in or out of the working set. Returns true if the
// document is selected after the call.
func (r *Resolver) Toggle(ref Reference) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.selected[ref.ID]; ok {
		delete(r.selected, ref.ID)
		return false
	}
	r.selected[ref.ID] = ref
	return true
}

// Carry folds ids coming from a different part of the UI into the set.
func (r *Resolver) Carry(refs []Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range refs {
		r.selected[ref.ID] = ref
	}
}

// AddPendingUpload records an upload by name until its id is known.
// Duplicate names are recorded once.
func (r *Resolver) AddPendingUpload(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.pending {
		if existing == name {
			return
		}
	}
	r.pending = append(r.pending, name)
}

// DropPendingUpload removes a failed upload from the working set. Other
// pending entries are unaffected.
func (r *Resolver) DropPendingUpload(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pending[:0]
	for _, existing := range r.pending {
		if existing != name {
			kept = append(kept, existing)
		}
	}
	r.pending = kept
	r.logger.Printf("[DOCS] Dropped failed upload %q from working set", name)
}

// Reconcile resolves pending upload names against the authoritative document
// list. A name matching an existing document resolves to that document's id
// (first match wins); names the list does not know yet stay pending and are
// returned. Resolving the same name twice yields the same single id.
func (r *Resolver) Reconcile(list []Reference) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName := make(map[string]Reference, len(list))
	for _, ref := range list {
		if _, seen := byName[ref.Name]; !seen {
			byName[ref.Name] = ref
		}
	}

	var stillPending []string
	for _, name := range r.pending {
		ref, ok := byName[name]
		if !ok {
			stillPending = append(stillPending, name)
			continue
		}
		r.selected[ref.ID] = ref
		r.logger.Printf("[DOCS] Resolved upload %q to document id %d", name, ref.ID)
	}
	r.pending = stillPending

	return append([]string(nil), stillPending...)
}

// IDs returns the deduplicated set of resolved document ids, ascending.
func (r *Resolver) IDs() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint, 0, len(r.selected))
	for id := range r.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// References returns the resolved references, ordered by id.
func (r *Resolver) References() []Reference {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs := make([]Reference, 0, len(r.selected))
	for _, ref := range r.selected {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

// Pending returns upload names not yet resolved to ids.
func (r *Resolver) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pending...)
}

// Reset clears the working set for a new, unrelated request.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = make(map[uint]Reference)
	r.pending = nil
}
