// Package harness runs the analyzer over txtar fixtures and compares the
// results with the expectations stored next to each snapshot.
package harness

// Configuration is one analyzer configuration of a fixture and the results
// it must produce. Member expectations use refs such as
// "com.example.Widget#void close()" or "com.example.Widget#count:int".
type Configuration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// Keep lists rules added to the snapshot's own.
	Keep []string `yaml:"keep,omitempty"`

	// MinVersion overrides the snapshot floor.
	MinVersion string `yaml:"min_version,omitempty"`

	// Live lists members that must be live.
	Live []string `yaml:"live,omitempty"`

	// Dead lists members that must not be live.
	Dead []string `yaml:"dead,omitempty"`

	// Instantiated is the exact set of instantiated classes, if given.
	Instantiated []string `yaml:"instantiated,omitempty"`

	// LibraryOverrides is the exact set of flagged methods.
	LibraryOverrides []string `yaml:"library_overrides"`

	// Versions maps members to their expected minimum version.
	Versions map[string]string `yaml:"versions,omitempty"`

	// Dominance maps every allocated class to its expected dominator.
	Dominance map[string]string `yaml:"dominance,omitempty"`

	// Missing is the exact set of unresolvable references.
	Missing []string `yaml:"missing,omitempty"`

	// ExpectedErrors lists substrings of an expected analysis error.
	ExpectedErrors []string `yaml:"expected_errors,omitempty"`
}

// Expectations is the content of a fixture's expected.yaml.
type Expectations struct {
	Configurations []Configuration `yaml:"configurations"`
}
