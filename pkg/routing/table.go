package routing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/rhuss/ember/pkg/debug"
)

// Table is the compiled, immutable route trie. It is safe for concurrent
// lookups without locking. Rebuilding means building a new Table.
type Table struct {
	root        *node
	routes      []*Route
	fingerprint string
}

// node branches on the byte at one depth. Byte 0 stands for "end of path".
type node struct {
	labels []byte
	edges  []edge
}

// edge either descends into a shared child or ends at a single route whose
// remaining bytes are compared in one step.
type edge struct {
	child  *node
	suffix string
	route  *Route
}

// Build compiles controllers into a Table. Two actions that resolve to the
// same path make Build fail with ErrDuplicateRoute.
func Build(controllers ...Controller) (*Table, error) {
	var routes []*Route
	for _, c := range controllers {
		c.Actions = slices.Clone(c.Actions)
		ctrl := c
		for i := range ctrl.Actions {
			r, err := compileRoute(&ctrl, &ctrl.Actions[i])
			if err != nil {
				return nil, err
			}
			routes = append(routes, r)
		}
	}

	slices.SortFunc(routes, func(a, b *Route) int { return strings.Compare(a.key, b.key) })

	root, err := buildNode(routes, 0)
	if err != nil {
		return nil, err
	}

	t := &Table{root: root, routes: routes, fingerprint: fingerprint(routes)}
	debug.Log("routing", "route table built", "routes", len(routes), "fingerprint", t.fingerprint[:12])
	return t, nil
}

// MustBuild is like Build but panics on error. It is meant for tables
// assembled from literals at startup.
func MustBuild(controllers ...Controller) *Table {
	t, err := Build(controllers...)
	if err != nil {
		panic(err)
	}
	return t
}

// buildNode partitions candidates sharing key[:depth] by their byte at
// depth. Candidates must be sorted so that each group is contiguous.
func buildNode(candidates []*Route, depth int) (*node, error) {
	n := &node{}
	for i := 0; i < len(candidates); {
		label := byteAt(candidates[i].key, depth)
		j := i + 1
		for j < len(candidates) && byteAt(candidates[j].key, depth) == label {
			j++
		}
		group := candidates[i:j]

		var e edge
		switch {
		case label == 0 && len(group) > 1:
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, group[0].key)
		case label == 0:
			e.route = group[0]
		case len(group) == 1:
			e.route = group[0]
			e.suffix = group[0].key[depth+1:]
		default:
			child, err := buildNode(group, depth+1)
			if err != nil {
				return nil, err
			}
			e.child = child
		}
		n.labels = append(n.labels, label)
		n.edges = append(n.edges, e)
		i = j
	}
	return n, nil
}

// Lookup finds the route for path (no leading slash, no querystring).
// It returns the route and the index where the match ended, which always
// equals len(path), or nil when nothing matches.
func (t *Table) Lookup(path string) (*Route, int) {
	n := t.root
	for depth := 0; ; depth++ {
		label := byteAt(path, depth)
		i := bytes.IndexByte(n.labels, label)
		if i < 0 {
			return nil, 0
		}
		e := &n.edges[i]
		if e.child != nil {
			n = e.child
			continue
		}

		end := depth
		if label != 0 {
			if !strings.HasPrefix(path[depth+1:], e.suffix) {
				return nil, 0
			}
			end = depth + 1 + len(e.suffix)
		}
		// A path that merely starts with a registered one must not match.
		if end != len(path) {
			return nil, 0
		}
		return e.route, end
	}
}

// Routes returns the compiled routes sorted by path.
func (t *Table) Routes() []*Route {
	return slices.Clone(t.routes)
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// Fingerprint is a hash over all route signatures. Two tables with the
// same fingerprint dispatch identically.
func (t *Table) Fingerprint() string {
	return t.fingerprint
}

func fingerprint(routes []*Route) string {
	h := sha256.New()
	for _, r := range routes {
		h.Write([]byte(r.Signature()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// byteAt returns s[i], or 0 past the end of s.
func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}
