// Package statepath applies dotted/bracket path mutations to in-memory
// document values. Paths address nested fields and sequence elements, e.g.
// "questions.answers[0]" or "menu.choices[1][2]". The same mutation grammar
// is used for agent state and activity state, and mirrors the path notation
// persisted alongside state updates.
//
// Values are either plain documents (map[string]any with []any sequences) or
// types implementing Container. Structured state types expose their named
// fields through Container instead of the mutator branching on concrete types.
//
// The empty path is reserved by callers to mean "replace the whole target";
// Apply and Get reject it so the replace-root convention stays an explicit
// caller decision.
package statepath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type (
	// Container is implemented by structured values that expose named fields
	// to the path mutator. Document maps are handled natively; typed state
	// structs implement Container to participate in path traversal without
	// reflection.
	Container interface {
		// GetKey returns the value of the named field and whether it exists.
		GetKey(key string) (any, bool)
		// SetKey assigns the named field. SetKey is only called for keys that
		// GetKey previously reported as existing.
		SetKey(key string, value any) error
	}

	// Document is a plain map-backed state value.
	Document = map[string]any
)

var (
	// ErrNotFound indicates a path segment could not be resolved against the
	// target value. Callers must not swallow it: it signals a contract
	// violation between a declared state shape and the attempted update.
	ErrNotFound = errors.New("key not found")

	// ErrEmptyPath indicates the reserved empty path was passed. Replacing
	// the whole target is the caller's convention (activity creation), not a
	// mutation this package performs.
	ErrEmptyPath = errors.New("empty path")
)

// Apply mutates root in place, assigning value at the location addressed by
// path. Deletion semantics are deliberately narrow: when value is falsy AND
// the final accessor is a sequence index, the element is removed and later
// elements shift left. A falsy value assigned to a named field keeps the
// field present with that value. This asymmetry is load-bearing for
// compatibility with persisted state; see the regression tests before
// changing it.
func Apply(root any, path string, value any) error {
	if path == "" {
		return fmt.Errorf("%w: %q", ErrEmptyPath, path)
	}
	steps, err := walk(root, path)
	if err != nil {
		return err
	}
	last := steps[len(steps)-1]
	if IsFalsy(value) && last.index >= 0 {
		seq, ok := last.parent.([]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		trimmed := append(seq[:last.index:last.index], seq[last.index+1:]...)
		// The shortened slice is a new header; write it back into the
		// sequence's own parent.
		if len(steps) < 2 {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return assign(steps[len(steps)-2], trimmed)
	}
	return assign(last, value)
}

// Get resolves path against root and returns the addressed value.
func Get(root any, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: %q", ErrEmptyPath, path)
	}
	steps, err := walk(root, path)
	if err != nil {
		return nil, err
	}
	return steps[len(steps)-1].child, nil
}

// step records one traversal hop: the container it descended from, the
// accessor used, and the value reached. Exactly one of key/index is set;
// index is -1 for named-field hops.
type step struct {
	parent any
	key    string
	index  int
	child  any
}

// assign writes value through the step's accessor into its parent.
func assign(s step, value any) error {
	if s.index >= 0 {
		seq, ok := s.parent.([]any)
		if !ok || s.index >= len(seq) {
			return ErrNotFound
		}
		seq[s.index] = value
		return nil
	}
	switch parent := s.parent.(type) {
	case Document:
		parent[s.key] = value
		return nil
	case Container:
		return parent.SetKey(s.key, value)
	default:
		return ErrNotFound
	}
}

// walk resolves every segment of path against root and returns the ordered
// traversal steps. The last step addresses the mutation target.
func walk(root any, path string) ([]step, error) {
	child := root
	var steps []step
	for _, segment := range strings.Split(path, ".") {
		name, indices, err := parseSegment(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		parent := child
		next, ok := lookup(parent, name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		child = next
		steps = append(steps, step{parent: parent, key: name, index: -1, child: child})
		for _, index := range indices {
			parent = child
			seq, ok := parent.([]any)
			if !ok || index < 0 || index >= len(seq) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			child = seq[index]
			steps = append(steps, step{parent: parent, index: index, child: child})
		}
	}
	return steps, nil
}

// lookup resolves a named field on a document map or Container.
func lookup(target any, key string) (any, bool) {
	switch container := target.(type) {
	case Document:
		value, ok := container[key]
		return value, ok
	case Container:
		return container.GetKey(key)
	default:
		return nil, false
	}
}

// parseSegment splits one dot-separated segment into its field name and any
// trailing bracket indices.
func parseSegment(segment string) (string, []int, error) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, nil, nil
	}
	name := segment[:open]
	rest := segment[open:]
	var indices []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed segment %q", segment)
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return "", nil, fmt.Errorf("malformed segment %q", segment)
		}
		index, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, fmt.Errorf("malformed segment %q: %w", segment, err)
		}
		indices = append(indices, index)
		rest = rest[close+1:]
	}
	return name, indices, nil
}

// IsFalsy reports whether value counts as falsy for the deletion rule. The
// set mirrors document-value truthiness: nil, empty string, false, numeric
// zero and empty composites. Exported so persistence targets apply the same
// rule when they translate updates.
func IsFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case int:
		return v == 0
	case int32:
		return v == 0
	case int64:
		return v == 0
	case float32:
		return v == 0
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
