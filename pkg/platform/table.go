package platform

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/715d/treeshake/pkg/model"
)

// Table maps class, method and field references to the first platform
// version that provides them. References without an entry are available
// from the floor version.
type Table struct {
	classes map[model.ClassRef]*Version
	methods map[model.MethodRef]*Version
	fields  map[model.FieldRef]*Version
}

// NewTable builds a table from textual entries. Keys are class names
// ("java.io.Closeable"), method references ("java.io.Closeable#void close()")
// or field references ("android.os.Build#SDK_INT:int").
func NewTable(entries map[string]string) (*Table, error) {
	t := &Table{
		classes: make(map[model.ClassRef]*Version),
		methods: make(map[model.MethodRef]*Version),
		fields:  make(map[model.FieldRef]*Version),
	}
	// Sorted so that the first reported error is stable.
	for _, key := range slices.Sorted(maps.Keys(entries)) {
		v, err := Parse(entries[key])
		if err != nil {
			return nil, fmt.Errorf("version table entry %q: %w", key, err)
		}
		if err := t.add(key, v); err != nil {
			return nil, fmt.Errorf("version table entry %q: %w", key, err)
		}
	}
	return t, nil
}

func (t *Table) add(key string, v *Version) error {
	switch {
	case !strings.Contains(key, "#"):
		t.classes[model.ClassRef(strings.TrimSpace(key))] = v
	case strings.Contains(key, "("):
		ref, err := model.ParseMethodRef(key)
		if err != nil {
			return err
		}
		t.methods[ref] = v
	default:
		ref, err := model.ParseFieldRef(key)
		if err != nil {
			return err
		}
		t.fields[ref] = v
	}
	return nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.classes) + len(t.methods) + len(t.fields)
}

// Class returns the version introducing the class.
func (t *Table) Class(ref model.ClassRef) (*Version, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.classes[ref]
	return v, ok
}

// Method returns the version introducing the method.
func (t *Table) Method(ref model.MethodRef) (*Version, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.methods[ref]
	return v, ok
}

// Field returns the version introducing the field.
func (t *Table) Field(ref model.FieldRef) (*Version, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.fields[ref]
	return v, ok
}
