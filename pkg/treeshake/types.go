// Package treeshake provides whole-program liveness analysis over class
// hierarchy snapshots.
package treeshake

import "time"

// Member is a live method or field.
type Member struct {
	Ref        string `json:"ref"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	MinVersion string `json:"min_version"`

	// LibraryOverride is "true" or "false" for live program virtual methods
	// and empty otherwise.
	LibraryOverride string `json:"library_override,omitempty"`
}

// Dominance is the initialization-dominance fact of an allocated class.
type Dominance struct {
	Class     string `json:"class"`
	Dominator string `json:"dominator"`
}

// Stats holds counters of one analysis.
type Stats struct {
	Classes       int           `json:"classes"`
	Roots         int           `json:"roots"`
	LiveClasses   int           `json:"live_classes"`
	LiveMethods   int           `json:"live_methods"`
	LiveFields    int           `json:"live_fields"`
	Rounds        int           `json:"rounds"`
	Traced        int           `json:"traced"`
	Dispatches    int           `json:"dispatches"`
	Instructions  int           `json:"instructions"`
	HierarchyJoin int           `json:"hierarchy_joins"`
	Duration      time.Duration `json:"duration"`
}

// Result is the outcome of analyzing one snapshot.
type Result struct {
	Snapshot   string `json:"snapshot"`
	MinVersion string `json:"min_version"`

	LiveClasses         []string `json:"live_classes"`
	InstantiatedClasses []string `json:"instantiated_classes"`
	Members             []Member `json:"members"`

	// LibraryOverrides lists the live program methods that override a
	// library method, sorted.
	LibraryOverrides []string `json:"library_overrides"`

	// AboveFloor lists the live members whose minimum version is above the
	// floor or unknown.
	AboveFloor []Member `json:"above_floor"`

	Dominance []Dominance `json:"dominance"`
	Missing   []string    `json:"missing"`
	Stats     Stats       `json:"stats"`
}

// Member returns the live member with the given ref, or false.
func (r *Result) Member(ref string) (Member, bool) {
	for _, m := range r.Members {
		if m.Ref == ref {
			return m, true
		}
	}
	return Member{}, false
}
