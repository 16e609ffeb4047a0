package analysis

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/treeshake/pkg/model"
)

// NameCache provides efficient caching of display names for members. One
// cache is shared by all phases of an analyzer, which may run concurrently.
type NameCache struct {
	methodCache *xsync.Map[*model.Method, string]
	fieldCache  *xsync.Map[*model.Field, string]
}

func NewNameCache() *NameCache {
	return &NameCache{
		methodCache: xsync.NewMap[*model.Method, string](),
		fieldCache:  xsync.NewMap[*model.Field, string](),
	}
}

// MethodName returns the short display name of a method,
// e.g. "Widget.close()" or "Widget.<init>(int)".
func (c *NameCache) MethodName(m *model.Method) string {
	if m == nil {
		return ""
	}
	name, ok := c.methodCache.Load(m)
	if ok {
		return name
	}
	name = computeMethodName(m)
	c.methodCache.Store(m, name)
	return name
}

// FieldName returns the short display name of a field, e.g. "Widget.count".
func (c *NameCache) FieldName(f *model.Field) string {
	if f == nil {
		return ""
	}
	name, ok := c.fieldCache.Load(f)
	if ok {
		return name
	}
	name = f.Holder.Name.SimpleName() + "." + f.Name
	c.fieldCache.Store(f, name)
	return name
}

// MemberName returns the display name of the member described by mi.
func (c *NameCache) MemberName(mi *MemberInfo) string {
	if mi.Method != nil {
		return c.MethodName(mi.Method)
	}
	return c.FieldName(mi.Field)
}

func computeMethodName(m *model.Method) string {
	holder := m.Holder.Name.SimpleName()
	sig := m.Signature

	var builder strings.Builder
	builder.Grow(len(holder) + len(sig.Name) + len(sig.Params) + 3)
	builder.WriteString(holder)
	builder.WriteByte('.')
	builder.WriteString(sig.Name)
	builder.WriteByte('(')
	for i, p := range sig.ParamTypes() {
		if i > 0 {
			builder.WriteString(", ")
		}
		// Drop package qualifiers from parameter types for readability.
		builder.WriteString(model.ClassRef(p).SimpleName())
	}
	builder.WriteByte(')')
	return builder.String()
}
