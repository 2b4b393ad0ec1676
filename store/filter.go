package store

import (
	"strings"

	"github.com/edenfs/kernelchannel/errorkind"
)

// Predicate decides whether path is visible under filterID, and whether
// a filter change at path is "unaffected" -- meaning every descendant of
// path is also unaffected (the precondition the Unknown downgrade in
// CompareObjectsByID relies on).
type Predicate interface {
	Visible(filterID, path string) bool
	Unaffected(filterID, path string) bool
}

// Filter wraps a base Store, post-processing GetTree results by
// dropping filtered-out entries and tagging the remainder with
// FilteredObjectId.
type Filter struct {
	base      Store
	predicate Predicate
}

// NewFilter constructs a Filter over base using predicate to decide
// visibility and the unaffected-descendants precondition.
func NewFilter(base Store, predicate Predicate) *Filter {
	return &Filter{base: base, predicate: predicate}
}

// GetRootTree parses mountID as "original-root-id:filter-id" and returns
// the filtered tree's id.
func (f *Filter) GetRootTree(mountID string) (ObjectId, error) {
	original, filterID, ok := strings.Cut(mountID, ":")
	if !ok {
		return nil, errorkind.New(errorkind.KindRequest, "malformed filtered root id %q: missing ':'", mountID)
	}
	rootID, err := f.base.GetRootTree(original)
	if err != nil {
		return nil, err
	}
	tagged := filteredID{tag: tagUnfilteredTree, underlying: rootID}
	if filterID != "" {
		tagged = filteredID{tag: tagFilteredTree, filterID: filterID, path: "", underlying: rootID}
	}
	return tagged.encode(), nil
}

// GetTree unwraps id, fetches the underlying tree, drops entries the
// predicate excludes, and re-tags surviving children with
// FilteredObjectId so that downstream equality checks observe the
// filter context. A child of the filter wrapper never leaks a bare
// underlying ObjectId back to the caller.
func (f *Filter) GetTree(id ObjectId) (*Tree, error) {
	parsed, err := parseFilteredObjectId(id)
	if err != nil {
		return nil, err
	}
	if parsed.tag == tagFilteredBlob {
		return nil, errorkind.Invariant("GetTree called on a FilteredObjectId tagged as a blob")
	}

	underlyingTree, err := f.base.GetTree(parsed.underlying)
	if err != nil {
		return nil, err
	}

	out := &Tree{Entries: make(map[string]TreeEntry, len(underlyingTree.Entries))}
	for _, name := range underlyingTree.Order {
		entry := underlyingTree.Entries[name]
		childPath := name
		if parsed.path != "" {
			childPath = parsed.path + "/" + name
		}
		if parsed.tag == tagFilteredTree && !f.predicate.Visible(parsed.filterID, childPath) {
			continue
		}

		var childID ObjectId
		switch {
		case entry.Kind != KindDirectory:
			childID = filteredID{tag: tagFilteredBlob, underlying: entry.ID}.encode()
		case parsed.tag == tagFilteredTree:
			childID = filteredID{tag: tagFilteredTree, filterID: parsed.filterID, path: childPath, underlying: entry.ID}.encode()
		default:
			childID = filteredID{tag: tagUnfilteredTree, underlying: entry.ID}.encode()
		}

		out.Entries[name] = TreeEntry{ID: childID, Kind: entry.Kind}
		out.Order = append(out.Order, name)
	}
	return out, nil
}

// GetBlob unwraps the filter tag and forwards to the base store.
func (f *Filter) GetBlob(id ObjectId) ([]byte, error) {
	underlying, err := Underlying(id)
	if err != nil {
		return nil, err
	}
	return f.base.GetBlob(underlying)
}

// GetBlobMetadata unwraps the filter tag and forwards to the base store.
func (f *Filter) GetBlobMetadata(id ObjectId) (BlobMetadata, error) {
	underlying, err := Underlying(id)
	if err != nil {
		return BlobMetadata{}, err
	}
	return f.base.GetBlobMetadata(underlying)
}

// PrefetchBlobs unwraps every id and forwards to the base store.
func (f *Filter) PrefetchBlobs(ids []ObjectId) error {
	underlying := make([]ObjectId, 0, len(ids))
	for _, id := range ids {
		u, err := Underlying(id)
		if err != nil {
			return err
		}
		underlying = append(underlying, u)
	}
	return f.base.PrefetchBlobs(underlying)
}

// CompareObjectsByID implements the four-way comparison rule table:
// identical bytes short-circuit; a type-tag mismatch is a programming
// error (callers never compare a blob id to a tree id); same-filter
// trees forward to the underlying store; different-filter trees report
// Unknown when the underlying result is Identical and the path is known
// unaffected by the filter change (an unaffected path's descendants are
// unaffected too), and Different in every other case.
func (f *Filter) CompareObjectsByID(a, b ObjectId) (CompareResult, error) {
	if a.Equal(b) {
		return Identical, nil
	}

	pa, err := parseFilteredObjectId(a)
	if err != nil {
		return Unknown, err
	}
	pb, err := parseFilteredObjectId(b)
	if err != nil {
		return Unknown, err
	}

	isBlobA := pa.tag == tagFilteredBlob
	isBlobB := pb.tag == tagFilteredBlob
	if isBlobA != isBlobB {
		return Unknown, errorkind.Invariant("CompareObjectsByID: comparing a blob id against a tree id")
	}

	underlyingResult, err := f.base.CompareObjectsByID(pa.underlying, pb.underlying)
	if err != nil {
		return Unknown, err
	}

	if isBlobA {
		return underlyingResult, nil
	}

	sameFilter := pa.tag == pb.tag && pa.filterID == pb.filterID
	if sameFilter {
		return underlyingResult, nil
	}

	if underlyingResult == Identical && f.predicate.Unaffected(pb.filterID, pb.path) {
		return Unknown, nil
	}
	return Different, nil
}
