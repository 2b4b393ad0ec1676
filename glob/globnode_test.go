package glob

import (
	"context"
	"testing"

	"github.com/edenfs/kernelchannel/store"
)

// fakeTreeStore is a minimal store.Store backed by an in-memory map of
// trees, keyed by the tree's ObjectId string form; blobs carry no
// content for these tests, only identity.
type fakeTreeStore struct {
	trees map[string]*store.Tree
}

func (s *fakeTreeStore) GetRootTree(mountID string) (store.ObjectId, error) {
	return store.ObjectId(mountID), nil
}

func (s *fakeTreeStore) GetTree(id store.ObjectId) (*store.Tree, error) {
	return s.trees[id.String()], nil
}

func (s *fakeTreeStore) GetBlob(id store.ObjectId) ([]byte, error) { return nil, nil }

func (s *fakeTreeStore) GetBlobMetadata(id store.ObjectId) (store.BlobMetadata, error) {
	return store.BlobMetadata{}, nil
}

func (s *fakeTreeStore) PrefetchBlobs(ids []store.ObjectId) error { return nil }

func (s *fakeTreeStore) CompareObjectsByID(a, b store.ObjectId) (store.CompareResult, error) {
	if a.Equal(b) {
		return store.Identical, nil
	}
	return store.Different, nil
}

func dirEntry(id string) store.TreeEntry {
	return store.TreeEntry{ID: store.ObjectId(id), Kind: store.KindDirectory}
}

func fileEntry(id string) store.TreeEntry {
	return store.TreeEntry{ID: store.ObjectId(id), Kind: store.KindRegular}
}

// buildFixture lays out:
//
//	root/
//	  src/
//	    main.c
//	    main.h
//	    .hidden.c
//	  docs/
//	    guide.md
//	  .git/
//	    HEAD
func buildFixture() (*fakeTreeStore, *store.Tree) {
	s := &fakeTreeStore{trees: map[string]*store.Tree{}}

	srcTree := &store.Tree{
		Entries: map[string]store.TreeEntry{
			"main.c":    fileEntry("blob-main-c"),
			"main.h":    fileEntry("blob-main-h"),
			".hidden.c": fileEntry("blob-hidden-c"),
		},
		Order: []string{"main.c", "main.h", ".hidden.c"},
	}
	docsTree := &store.Tree{
		Entries: map[string]store.TreeEntry{"guide.md": fileEntry("blob-guide")},
		Order:   []string{"guide.md"},
	}
	gitTree := &store.Tree{
		Entries: map[string]store.TreeEntry{"HEAD": fileEntry("blob-head")},
		Order:   []string{"HEAD"},
	}
	s.trees["tree-src"] = srcTree
	s.trees["tree-docs"] = docsTree
	s.trees["tree-git"] = gitTree

	root := &store.Tree{
		Entries: map[string]store.TreeEntry{
			"src":  dirEntry("tree-src"),
			"docs": dirEntry("tree-docs"),
			".git": dirEntry("tree-git"),
		},
		Order: []string{"src", "docs", ".git"},
	}
	return s, root
}

func TestGlobNodeDirectLookupMatchesExactPath(t *testing.T) {
	st, root := buildFixture()
	tree, err := NewGlobTree([]string{"src/main.c"}, false, false)
	if err != nil {
		t.Fatalf("NewGlobTree: %v", err)
	}
	results, _, err := tree.Evaluate(context.Background(), st, root, "root1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 1 || results[0].Path != "src/main.c" {
		t.Fatalf("got %+v, want exactly src/main.c", results)
	}
}

func TestGlobNodeWildcardMatchesSiblingsExcludingDotfiles(t *testing.T) {
	st, root := buildFixture()
	tree, err := NewGlobTree([]string{"src/*.c"}, false, false)
	if err != nil {
		t.Fatalf("NewGlobTree: %v", err)
	}
	results, _, err := tree.Evaluate(context.Background(), st, root, "root1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 1 || results[0].Path != "src/main.c" {
		t.Fatalf("got %+v, want only src/main.c (dotfile excluded)", results)
	}
}

func TestGlobNodeWildcardIncludesDotfilesWhenRequested(t *testing.T) {
	st, root := buildFixture()
	tree, err := NewGlobTree([]string{"src/*.c"}, true, false)
	if err != nil {
		t.Fatalf("NewGlobTree: %v", err)
	}
	results, _, err := tree.Evaluate(context.Background(), st, root, "root1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %+v, want src/main.c and src/.hidden.c", results)
	}
}

func TestGlobNodeRecursiveWildcardSkipsDotfileDirectoriesByDefault(t *testing.T) {
	st, root := buildFixture()
	tree, err := NewGlobTree([]string{"**/*.md"}, false, false)
	if err != nil {
		t.Fatalf("NewGlobTree: %v", err)
	}
	results, _, err := tree.Evaluate(context.Background(), st, root, "root1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 1 || results[0].Path != "docs/guide.md" {
		t.Fatalf("got %+v, want only docs/guide.md", results)
	}
}

func TestGlobNodeRecursiveWildcardNeverDescendsIntoDotfileDirWhenExcluded(t *testing.T) {
	st, root := buildFixture()
	tree, err := NewGlobTree([]string{"**"}, false, false)
	if err != nil {
		t.Fatalf("NewGlobTree: %v", err)
	}
	results, prefetch, err := tree.Evaluate(context.Background(), st, root, "root1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, r := range results {
		if r.Path == ".git/HEAD" {
			t.Fatalf("did not expect .git/HEAD in results: %+v", results)
		}
	}
	if len(prefetch) == 0 {
		t.Fatal("expected non-directory matches to be queued for prefetch")
	}
}

func TestPrefetchMatchesBatchesAtCap(t *testing.T) {
	st := &fakeTreeStore{trees: map[string]*store.Tree{}}
	ids := make([]store.ObjectId, MaxPrefetchBatch+5)
	for i := range ids {
		ids[i] = store.ObjectId([]byte{byte(i), byte(i >> 8)})
	}
	if err := PrefetchMatches(st, ids); err != nil {
		t.Fatalf("PrefetchMatches: %v", err)
	}
}
