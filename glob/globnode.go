package glob

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edenfs/kernelchannel/errorkind"
	"github.com/edenfs/kernelchannel/store"
)

// GlobNode is one path component of a compiled multi-pattern glob
// query: a tree keyed by path component, built by merging every input
// pattern's non-recursive segments so a query against many patterns
// shares common prefixes instead of walking the tree once per pattern.
// A "**" in an input pattern breaks off into a recursiveChildren entry
// instead of continuing the tree, since everything after it must be
// tested against every descendant rather than navigated level by
// level.
//
// Grounded on EdenFS's GlobNodeImpl: children looked up directly by
// name when the component has no wildcard ("hasSpecials=false"),
// otherwise iterated and matched; a node is a leaf when reaching it
// should emit a match.
type GlobNode struct {
	pattern     string // the literal text of this node's own component, for lookup
	hasSpecials bool
	alwaysMatch bool // "*" compiled with includeDotfiles: matches unconditionally
	isLeaf      bool
	seg         segment
	caseFold    bool

	includeDotfiles bool

	children          []*GlobNode
	recursiveChildren []recursiveMatcher
}

// recursiveMatcher is what a "**" component in an input pattern
// compiles to: the remainder of the pattern after the "**", reused as
// a full Pattern so it inherits every wildcard feature (including a
// further interior or trailing "**") instead of re-implementing that
// logic against a second matcher type.
type recursiveMatcher struct {
	pattern     *Pattern // nil when alwaysMatch
	alwaysMatch bool     // bare trailing "**": matches any descendant path
}

// match tests candidatePath -- the path accumulated since "**" started
// consuming directories -- against the compiled suffix pattern. Using
// Pattern.Match rather than a single matchFrom(parts, 0) call lets the
// suffix match starting at any depth within candidatePath, which is
// exactly what "zero or more leading directories consumed by **"
// means: "**/*.md" must match "guide.md" whether candidatePath is
// "guide.md" or "docs/guide.md" or "a/b/docs/guide.md".
func (r recursiveMatcher) match(candidatePath string) bool {
	if r.alwaysMatch {
		return true
	}
	return r.pattern.Match(candidatePath)
}

// NewGlobTree compiles patterns into one GlobNode tree usable with
// Evaluate. includeDotfiles and caseFold apply uniformly to every
// pattern in the set.
func NewGlobTree(patterns []string, includeDotfiles, caseFold bool) (*GlobNode, error) {
	root := &GlobNode{includeDotfiles: includeDotfiles, caseFold: caseFold}
	for _, p := range patterns {
		if err := root.insert(p, includeDotfiles, caseFold); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func (n *GlobNode) insert(pattern string, includeDotfiles, caseFold bool) error {
	comps := strings.Split(pattern, "/")
	cur := n
	for i, comp := range comps {
		if comp == "**" {
			suffix := strings.Join(comps[i+1:], "/")
			if suffix == "" {
				cur.recursiveChildren = append(cur.recursiveChildren, recursiveMatcher{alwaysMatch: true})
				return nil
			}
			p, err := Compile(suffix, caseFold, includeDotfiles)
			if err != nil {
				return errorkind.New(errorkind.KindPatternCompile, "pattern %q: %v", pattern, err)
			}
			cur.recursiveChildren = append(cur.recursiveChildren, recursiveMatcher{pattern: p})
			return nil
		}

		hasSpecials := containsSpecials(comp)
		child := cur.lookupChild(comp, hasSpecials)
		if child == nil {
			child = &GlobNode{
				pattern:         comp,
				hasSpecials:     hasSpecials,
				includeDotfiles: includeDotfiles,
				caseFold:        caseFold,
			}
			if hasSpecials {
				seg, err := compileSegment(comp)
				if err != nil {
					return errorkind.New(errorkind.KindPatternCompile, "pattern %q: %v", pattern, err)
				}
				child.seg = seg
				child.alwaysMatch = comp == "*" && includeDotfiles
			}
			cur.children = append(cur.children, child)
		}
		if i == len(comps)-1 {
			child.isLeaf = true
		}
		cur = child
	}
	return nil
}

func (n *GlobNode) lookupChild(comp string, hasSpecials bool) *GlobNode {
	for _, c := range n.children {
		if c.hasSpecials == hasSpecials && c.pattern == comp {
			return c
		}
	}
	return nil
}

func containsSpecials(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// matchesName reports whether this node (a component with wildcards)
// matches a directory entry's name, applying the dotfile policy: a
// leading-dot name is rejected unless includeDotfiles was set, unless
// this node is the unconditional "*" shortcut.
func (n *GlobNode) matchesName(name string) bool {
	if n.alwaysMatch {
		return true
	}
	if !n.includeDotfiles && isDotfile(name) {
		return false
	}
	return matchSegment(n.seg, name, n.caseFold, n.includeDotfiles)
}

// MatchResult is one matched path emitted by Evaluate: the
// (relative-path, kind, origin-root-id) tuple a glob query collects.
type MatchResult struct {
	Path         string
	Kind         store.EntryKind
	OriginRootID string
}

// MaxPrefetchBatch is the largest number of deduplicated blob ids this
// package will hand to a single PrefetchBlobs call.
const MaxPrefetchBatch = 20480

// walkState accumulates one Evaluate call's results and the
// deduplicated set of non-directory blob ids its matches touched,
// guarded by a mutex since multiple concurrent subtree walks append to
// it -- mirroring GlobResult.h's folly::Synchronized<vector<...>>.
type walkState struct {
	store store.Store

	mu           sync.Mutex
	results      []MatchResult
	prefetch     []store.ObjectId
	prefetchSeen map[string]bool
}

func (w *walkState) addResult(r MatchResult) {
	w.mu.Lock()
	w.results = append(w.results, r)
	w.mu.Unlock()
}

func (w *walkState) addPrefetch(id store.ObjectId) {
	key := id.String()
	w.mu.Lock()
	if !w.prefetchSeen[key] {
		w.prefetchSeen[key] = true
		w.prefetch = append(w.prefetch, id)
	}
	w.mu.Unlock()
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func pathHasDotfileComponent(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if isDotfile(part) {
			return true
		}
	}
	return false
}

// Evaluate walks rootTree (the root of one backing-store tree) against
// every pattern parsed into n: non-special components are looked up
// directly by name, special ones are matched by iterating the tree's
// entries, and "**" components are tested against every descendant's
// accumulated relative path. Subtree fetches (a GetTree round trip per
// matched directory) are issued concurrently via an errgroup.Group;
// Evaluate blocks until every one of them has completed (collecting all
// outcomes even after the first error, since a caller is free to
// destroy rootTree the moment this function returns), then returns the
// matches in deterministic sorted order after dedup, plus the
// deduplicated set of non-directory blob ids encountered -- hand that
// slice to PrefetchMatches to warm the cache in bounded batches.
func (n *GlobNode) Evaluate(ctx context.Context, st store.Store, rootTree *store.Tree, originRootID string) ([]MatchResult, []store.ObjectId, error) {
	w := &walkState{store: st, prefetchSeen: make(map[string]bool)}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.walk(gctx, g, w, "", rootTree, originRootID)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	w.mu.Lock()
	results := append([]MatchResult(nil), w.results...)
	prefetch := append([]store.ObjectId(nil), w.prefetch...)
	w.mu.Unlock()

	return sortAndDedupResults(results), prefetch, nil
}

func (n *GlobNode) emit(w *walkState, path string, entry store.TreeEntry, originRootID string) {
	w.addResult(MatchResult{Path: path, Kind: entry.Kind, OriginRootID: originRootID})
	if entry.Kind != store.KindDirectory {
		w.addPrefetch(entry.ID)
	}
}

func (n *GlobNode) walk(ctx context.Context, g *errgroup.Group, w *walkState, rootPath string, tree *store.Tree, originRootID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(n.recursiveChildren) > 0 {
		n.walkRecursive(g, w, rootPath, "", tree, originRootID)
	}

	type recurseItem struct {
		name  string
		node  *GlobNode
		entry store.TreeEntry
	}
	var toRecurse []recurseItem

	for _, child := range n.children {
		if !child.hasSpecials {
			entry, ok := tree.Entries[child.pattern]
			if !ok {
				continue
			}
			if child.isLeaf {
				child.emit(w, joinPath(rootPath, child.pattern), entry, originRootID)
			}
			if entry.Kind == store.KindDirectory && (len(child.children) > 0 || len(child.recursiveChildren) > 0) {
				toRecurse = append(toRecurse, recurseItem{child.pattern, child, entry})
			}
			continue
		}

		for _, name := range tree.Order {
			entry := tree.Entries[name]
			if !child.matchesName(name) {
				continue
			}
			if child.isLeaf {
				child.emit(w, joinPath(rootPath, name), entry, originRootID)
			}
			if entry.Kind == store.KindDirectory && (len(child.children) > 0 || len(child.recursiveChildren) > 0) {
				toRecurse = append(toRecurse, recurseItem{name, child, entry})
			}
		}
	}

	for _, item := range toRecurse {
		item := item
		childPath := joinPath(rootPath, item.name)
		g.Go(func() error {
			childTree, err := w.store.GetTree(item.entry.ID)
			if err != nil {
				return err
			}
			return item.node.walk(ctx, g, w, childPath, childTree, originRootID)
		})
	}
	return nil
}

// walkRecursive applies n's recursiveChildren ("**" suffixes) against
// every descendant of tree, accumulating candidateName (the path since
// the recursion point, NOT including rootPath) so a suffix pattern like
// "*.c" or "sub/*.c" is tested against the right relative path.
// candidateName is what the dotfile policy's "rejects any descendant
// whose path contains /." rule inspects, via pathHasDotfileComponent.
// A matched entry emits exactly once even if more than one
// recursiveChildren matcher would also match it.
func (n *GlobNode) walkRecursive(g *errgroup.Group, w *walkState, rootPath, candidateBase string, tree *store.Tree, originRootID string) {
	type recurseItem struct {
		name  string
		entry store.TreeEntry
	}
	var toRecurse []recurseItem

	for _, name := range tree.Order {
		entry := tree.Entries[name]
		candidate := joinPath(candidateBase, name)

		if !n.includeDotfiles && pathHasDotfileComponent(candidate) {
			// Every descendant would carry the same dotfile component,
			// so a dotfile directory is not descended into.
			continue
		}

		for _, rc := range n.recursiveChildren {
			if rc.match(candidate) {
				w.addResult(MatchResult{Path: joinPath(rootPath, candidate), Kind: entry.Kind, OriginRootID: originRootID})
				if entry.Kind != store.KindDirectory {
					w.addPrefetch(entry.ID)
				}
				break
			}
		}
		if entry.Kind == store.KindDirectory {
			toRecurse = append(toRecurse, recurseItem{candidate, entry})
		}
	}

	for _, item := range toRecurse {
		item := item
		g.Go(func() error {
			childTree, err := w.store.GetTree(item.entry.ID)
			if err != nil {
				return err
			}
			n.walkRecursive(g, w, rootPath, item.name, childTree, originRootID)
			return nil
		})
	}
}

// sortAndDedupResults sorts matches by (path, kind, origin-root-id) --
// GlobResult.h's comparator -- and drops exact duplicates, which arise
// when the same path is reachable through more than one pattern in the
// tree.
func sortAndDedupResults(results []MatchResult) []MatchResult {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.OriginRootID < b.OriginRootID
	})

	out := results[:0]
	for i, r := range results {
		if i > 0 && r == out[len(out)-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PrefetchMatches deduplicates (already done by Evaluate) and issues
// ids to st.PrefetchBlobs in batches of at most MaxPrefetchBatch.
func PrefetchMatches(st store.Store, ids []store.ObjectId) error {
	for len(ids) > 0 {
		n := len(ids)
		if n > MaxPrefetchBatch {
			n = MaxPrefetchBatch
		}
		if err := st.PrefetchBlobs(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}
