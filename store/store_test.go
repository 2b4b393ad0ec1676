package store

import "testing"

type fakeStore struct {
	trees   map[string]*Tree
	blobs   map[string][]byte
	compare func(a, b ObjectId) (CompareResult, error)
}

func (s *fakeStore) GetRootTree(mountID string) (ObjectId, error) {
	return ObjectId(mountID), nil
}

func (s *fakeStore) GetTree(id ObjectId) (*Tree, error) {
	return s.trees[id.String()], nil
}

func (s *fakeStore) GetBlob(id ObjectId) ([]byte, error) {
	return s.blobs[id.String()], nil
}

func (s *fakeStore) GetBlobMetadata(id ObjectId) (BlobMetadata, error) {
	return BlobMetadata{Size: uint64(len(s.blobs[id.String()]))}, nil
}

func (s *fakeStore) PrefetchBlobs(ids []ObjectId) error { return nil }

func (s *fakeStore) CompareObjectsByID(a, b ObjectId) (CompareResult, error) {
	if s.compare != nil {
		return s.compare(a, b)
	}
	if a.Equal(b) {
		return Identical, nil
	}
	return Different, nil
}

type fakePredicate struct {
	visible    map[string]bool
	unaffected map[string]bool
}

func (p *fakePredicate) Visible(filterID, path string) bool {
	if p.visible == nil {
		return true
	}
	v, ok := p.visible[filterID+"|"+path]
	if !ok {
		return true
	}
	return v
}

func (p *fakePredicate) Unaffected(filterID, path string) bool {
	return p.unaffected[filterID+"|"+path]
}

func objID(b byte, rest string) ObjectId {
	return append([]byte{b}, rest...)
}

// TestFilteredTreesSameUnderlyingDifferentFilterIsUnknown covers two
// trees whose underlying object ids are identical but whose filter ids
// differ at the wrapping level, where the filter-covered path is known
// unaffected by the filter change. Expected: CompareObjectsByID returns
// Unknown.
func TestFilteredTreesSameUnderlyingDifferentFilterIsUnknown(t *testing.T) {
	base := &fakeStore{}
	pred := &fakePredicate{unaffected: map[string]bool{"filterB|src": true}}
	f := NewFilter(base, pred)

	a := filteredID{tag: tagFilteredTree, filterID: "filterA", path: "src", underlying: ObjectId("tree1")}.encode()
	b := filteredID{tag: tagFilteredTree, filterID: "filterB", path: "src", underlying: ObjectId("tree1")}.encode()

	got, err := f.CompareObjectsByID(a, b)
	if err != nil {
		t.Fatalf("CompareObjectsByID: %v", err)
	}
	if got != Unknown {
		t.Fatalf("got %v, want Unknown", got)
	}
}

// TestUnaffectedPathDowngradeRequiresPrecondition checks the other half
// of the same rule: when the path is NOT known unaffected, a
// different-filter comparison over identical underlying trees must
// report Different rather than silently assuming Unknown -- the
// downgrade is only licensed when the unaffected precondition holds.
func TestUnaffectedPathDowngradeRequiresPrecondition(t *testing.T) {
	base := &fakeStore{}
	pred := &fakePredicate{}
	f := NewFilter(base, pred)

	a := filteredID{tag: tagFilteredTree, filterID: "filterA", path: "src", underlying: ObjectId("tree1")}.encode()
	b := filteredID{tag: tagFilteredTree, filterID: "filterB", path: "src", underlying: ObjectId("tree1")}.encode()

	got, err := f.CompareObjectsByID(a, b)
	if err != nil {
		t.Fatalf("CompareObjectsByID: %v", err)
	}
	if got != Different {
		t.Fatalf("got %v, want Different", got)
	}
}

// TestUnaffectedDescendantsInheritPrecondition checks that: if a path
// is unaffected by a filter change, every descendant fetched
// through GetTree is also unaffected, so comparing two descendant trees
// (reached through the same unaffected parent) downgrades to Unknown
// too.
func TestUnaffectedDescendantsInheritPrecondition(t *testing.T) {
	base := &fakeStore{
		trees: map[string]*Tree{
			ObjectId("root1").String(): {
				Entries: map[string]TreeEntry{"src": {ID: ObjectId("tree1"), Kind: KindDirectory}},
				Order:   []string{"src"},
			},
		},
	}
	pred := &fakePredicate{unaffected: map[string]bool{"filterB|src": true}}
	f := NewFilter(base, pred)

	rootA := filteredID{tag: tagFilteredTree, filterID: "filterA", path: "", underlying: ObjectId("root1")}.encode()
	rootB := filteredID{tag: tagFilteredTree, filterID: "filterB", path: "", underlying: ObjectId("root1")}.encode()

	treeA, err := f.GetTree(rootA)
	if err != nil {
		t.Fatalf("GetTree(rootA): %v", err)
	}
	treeB, err := f.GetTree(rootB)
	if err != nil {
		t.Fatalf("GetTree(rootB): %v", err)
	}

	childA := treeA.Entries["src"].ID
	childB := treeB.Entries["src"].ID

	got, err := f.CompareObjectsByID(childA, childB)
	if err != nil {
		t.Fatalf("CompareObjectsByID: %v", err)
	}
	if got != Unknown {
		t.Fatalf("got %v, want Unknown for unaffected descendant", got)
	}
}

func TestGetTreeDropsFilteredOutEntries(t *testing.T) {
	base := &fakeStore{
		trees: map[string]*Tree{
			ObjectId("root1").String(): {
				Entries: map[string]TreeEntry{
					"visible.txt": {ID: ObjectId("blob1"), Kind: KindRegular},
					"hidden.txt":  {ID: ObjectId("blob2"), Kind: KindRegular},
				},
				Order: []string{"visible.txt", "hidden.txt"},
			},
		},
	}
	pred := &fakePredicate{visible: map[string]bool{"f1|hidden.txt": false}}
	f := NewFilter(base, pred)

	root := filteredID{tag: tagFilteredTree, filterID: "f1", path: "", underlying: ObjectId("root1")}.encode()
	tree, err := f.GetTree(root)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if _, ok := tree.Entries["hidden.txt"]; ok {
		t.Fatal("expected hidden.txt to be dropped")
	}
	if _, ok := tree.Entries["visible.txt"]; !ok {
		t.Fatal("expected visible.txt to survive")
	}
}

func TestGetRootTreeParsesOriginalAndFilterID(t *testing.T) {
	base := &fakeStore{}
	f := NewFilter(base, &fakePredicate{})

	id, err := f.GetRootTree("abc123:myfilter")
	if err != nil {
		t.Fatalf("GetRootTree: %v", err)
	}
	filterID, ok := FilterID(id)
	if !ok || filterID != "myfilter" {
		t.Fatalf("got filterID=%q ok=%v, want myfilter/true", filterID, ok)
	}
	underlying, err := Underlying(id)
	if err != nil {
		t.Fatalf("Underlying: %v", err)
	}
	if underlying.String() != ObjectId("abc123").String() {
		t.Fatalf("got underlying %v, want abc123", underlying)
	}
}

func TestCompareObjectsByIDIdenticalBytesShortCircuits(t *testing.T) {
	f := NewFilter(&fakeStore{}, &fakePredicate{})
	id := filteredID{tag: tagFilteredBlob, underlying: ObjectId("blob1")}.encode()
	got, err := f.CompareObjectsByID(id, id)
	if err != nil {
		t.Fatalf("CompareObjectsByID: %v", err)
	}
	if got != Identical {
		t.Fatalf("got %v, want Identical", got)
	}
}

func TestCompareObjectsByIDBlobVsTreeIsInvariantError(t *testing.T) {
	f := NewFilter(&fakeStore{}, &fakePredicate{})
	blob := filteredID{tag: tagFilteredBlob, underlying: ObjectId("x")}.encode()
	tree := filteredID{tag: tagUnfilteredTree, underlying: ObjectId("y")}.encode()
	if _, err := f.CompareObjectsByID(blob, tree); err == nil {
		t.Fatal("expected an invariant error comparing a blob id to a tree id")
	}
}
