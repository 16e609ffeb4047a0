// Package analysis provides per-member facts shared between the
// reachability engine and the analyses it hosts.
package analysis

import (
	"github.com/715d/treeshake/pkg/model"
	"github.com/715d/treeshake/pkg/platform"
)

// OptionalBool is a tri-state boolean that starts Unknown.
type OptionalBool uint8

const (
	Unknown OptionalBool = iota
	False
	True
)

// IsTrue reports whether b is True.
func (b OptionalBool) IsTrue() bool { return b == True }

// IsUnknown reports whether b is Unknown.
func (b OptionalBool) IsUnknown() bool { return b == Unknown }

// String returns "unknown", "false" or "true".
func (b OptionalBool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

// MemberInfo holds the facts learned about one live method or field. Only
// the designated monotonic fields are written by analyses.
type MemberInfo struct {
	// Method is the live method, nil for fields.
	Method *model.Method

	// Field is the live field, nil for methods.
	Field *model.Field

	// Reason records why the member first became live.
	Reason string

	// MinVersion is the minimum platform version the member requires. It is
	// nil until computed, and shared between members that require the
	// compilation floor.
	MinVersion *platform.Version

	libraryOverride OptionalBool
}

// NewMethodInfo creates facts for a live method.
func NewMethodInfo(m *model.Method, reason string) *MemberInfo {
	return &MemberInfo{Method: m, Reason: reason}
}

// NewFieldInfo creates facts for a live field.
func NewFieldInfo(f *model.Field, reason string) *MemberInfo {
	return &MemberInfo{Field: f, Reason: reason}
}

// LibraryOverride tells whether the method may be invoked from outside the
// program through a library supertype.
func (mi *MemberInfo) LibraryOverride() OptionalBool { return mi.libraryOverride }

// MarkLibraryOverride permanently sets the library override flag. It
// reports whether the flag changed.
func (mi *MemberInfo) MarkLibraryOverride() bool {
	if mi.libraryOverride == True {
		return false
	}
	mi.libraryOverride = True
	return true
}

// FinalizeLibraryOverride turns an Unknown flag into False. A True flag is
// never reset.
func (mi *MemberInfo) FinalizeLibraryOverride() {
	if mi.libraryOverride == Unknown {
		mi.libraryOverride = False
	}
}

// IsMethod reports whether the facts describe a method.
func (mi *MemberInfo) IsMethod() bool { return mi.Method != nil }

// String returns the qualified member reference.
func (mi *MemberInfo) String() string {
	if mi.Method != nil {
		return mi.Method.String()
	}
	if mi.Field != nil {
		return mi.Field.String()
	}
	return ""
}
