// Package store implements a content-addressed backing store: a base
// object fetcher plus a Filter wrapper that tags
// object identifiers with filter context so that the same underlying
// object rendered under two different filters remains distinguishable
// to a downstream equality check.
//
// Layering style -- a wrapper holding the thing it wraps as a field and
// implementing the same interface -- is grounded on gcsfuse's
// gcsproxy.ListingProxy wrapping gcs.Bucket.
package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/edenfs/kernelchannel/errorkind"
)

// ObjectId identifies a content-addressed object. The first byte is a
// type tag reserved to disambiguate FilteredObjectId's variants from a
// plain underlying id; equality is bytewise.
type ObjectId []byte

// Equal reports bytewise equality.
func (o ObjectId) Equal(other ObjectId) bool { return bytes.Equal(o, other) }

func (o ObjectId) String() string { return fmt.Sprintf("%x", []byte(o)) }

// Filtered object id type tags.
const (
	tagFilteredBlob     = 0x10
	tagFilteredTree     = 0x11
	tagUnfilteredTree   = 0x12
)

// EntryKind classifies a tree entry.
type EntryKind int

const (
	KindRegular EntryKind = iota
	KindExecutable
	KindSymlink
	KindDirectory
)

// TreeEntry is one child of a Tree: its identity and kind.
type TreeEntry struct {
	ID   ObjectId
	Kind EntryKind
}

// Tree is an ordered mapping from path component to TreeEntry.
// Case-sensitivity is a per-mount property enforced by the caller, not
// by Tree itself.
type Tree struct {
	Entries map[string]TreeEntry
	Order   []string
}

// BlobMetadata is the size/kind pair returned by GetBlobMetadata without
// fetching blob content.
type BlobMetadata struct {
	Size uint64
	Kind EntryKind
}

// Store is the base backing-store contract every layer (including
// Filter) implements, mirroring gcsfuse's gcs.Bucket-shaped interfaces.
type Store interface {
	GetRootTree(mountID string) (ObjectId, error)
	GetTree(id ObjectId) (*Tree, error)
	GetBlob(id ObjectId) ([]byte, error)
	GetBlobMetadata(id ObjectId) (BlobMetadata, error)
	PrefetchBlobs(ids []ObjectId) error
	CompareObjectsByID(a, b ObjectId) (CompareResult, error)
}

// CompareResult is the three-valued outcome of comparing two object ids
// without necessarily fetching their content.
type CompareResult int

const (
	Identical CompareResult = iota
	Different
	Unknown
)

func (c CompareResult) String() string {
	switch c {
	case Identical:
		return "identical"
	case Different:
		return "different"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// filteredID is a decoded FilteredObjectId: the variant tag and, for the
// tree variant, the embedded filter id / path / underlying id.
type filteredID struct {
	tag        byte
	filterID   string
	path       string
	underlying ObjectId
}

// parseFilteredObjectId decodes one of the three FilteredObjectId wire
// variants. It returns an invariant error if the leading byte is not one
// of 0x10/0x11/0x12 -- a FilteredObjectId must always carry a valid type
// byte.
func parseFilteredObjectId(id ObjectId) (filteredID, error) {
	if len(id) == 0 {
		return filteredID{}, errorkind.Invariant("empty FilteredObjectId")
	}
	switch id[0] {
	case tagFilteredBlob:
		return filteredID{tag: tagFilteredBlob, underlying: ObjectId(id[1:])}, nil
	case tagUnfilteredTree:
		return filteredID{tag: tagUnfilteredTree, underlying: ObjectId(id[1:])}, nil
	case tagFilteredTree:
		rest := id[1:]
		filterLen, n := binary.Uvarint(rest)
		if n <= 0 {
			return filteredID{}, errorkind.New(errorkind.KindKernelProtocol, "malformed filtered-tree id: bad filterIdLen varint")
		}
		rest = rest[n:]
		if uint64(len(rest)) < filterLen {
			return filteredID{}, errorkind.New(errorkind.KindKernelProtocol, "malformed filtered-tree id: truncated filterId")
		}
		filterID := string(rest[:filterLen])
		rest = rest[filterLen:]

		pathLen, n := binary.Uvarint(rest)
		if n <= 0 {
			return filteredID{}, errorkind.New(errorkind.KindKernelProtocol, "malformed filtered-tree id: bad pathLen varint")
		}
		rest = rest[n:]
		if uint64(len(rest)) < pathLen {
			return filteredID{}, errorkind.New(errorkind.KindKernelProtocol, "malformed filtered-tree id: truncated path")
		}
		path := string(rest[:pathLen])
		rest = rest[pathLen:]

		return filteredID{tag: tagFilteredTree, filterID: filterID, path: path, underlying: ObjectId(rest)}, nil
	default:
		return filteredID{}, errorkind.Invariant("FilteredObjectId has invalid type tag 0x%02x", id[0])
	}
}

func (f filteredID) encode() ObjectId {
	switch f.tag {
	case tagFilteredBlob:
		return append([]byte{tagFilteredBlob}, f.underlying...)
	case tagUnfilteredTree:
		return append([]byte{tagUnfilteredTree}, f.underlying...)
	case tagFilteredTree:
		var buf []byte
		buf = append(buf, tagFilteredTree)
		buf = appendUvarint(buf, uint64(len(f.filterID)))
		buf = append(buf, f.filterID...)
		buf = appendUvarint(buf, uint64(len(f.path)))
		buf = append(buf, f.path...)
		buf = append(buf, f.underlying...)
		return buf
	}
	return nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Filter accessors. FilterID/Path must fail (return ok=false) on the
// blob and unfiltered-tree variants, which carry no filter context.

// FilterID returns the filter id embedded in a filtered-tree
// FilteredObjectId, or ok=false for the blob/unfiltered-tree variants.
func FilterID(id ObjectId) (filterID string, ok bool) {
	f, err := parseFilteredObjectId(id)
	if err != nil || f.tag != tagFilteredTree {
		return "", false
	}
	return f.filterID, true
}

// Path returns the path embedded in a filtered-tree FilteredObjectId, or
// ok=false for the blob/unfiltered-tree variants.
func Path(id ObjectId) (path string, ok bool) {
	f, err := parseFilteredObjectId(id)
	if err != nil || f.tag != tagFilteredTree {
		return "", false
	}
	return f.path, true
}

// Underlying returns the wrapped ObjectId for any of the three variants.
func Underlying(id ObjectId) (ObjectId, error) {
	f, err := parseFilteredObjectId(id)
	if err != nil {
		return nil, err
	}
	return f.underlying, nil
}
