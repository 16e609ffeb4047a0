// Package snapshot decodes the YAML program snapshots analyzed by treeshake.
package snapshot

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/treeshake/pkg/model"
	"github.com/715d/treeshake/pkg/platform"
)

// File is the on-disk form of a snapshot.
type File struct {
	Root       string            `yaml:"root,omitempty"`
	MinVersion string            `yaml:"min_version,omitempty"`
	Classes    []ClassSpec       `yaml:"classes"`
	Keep       []string          `yaml:"keep,omitempty"`
	Versions   map[string]string `yaml:"versions,omitempty"`
}

// ClassSpec describes one class.
type ClassSpec struct {
	Name       string       `yaml:"name"`
	Origin     string       `yaml:"origin,omitempty"`
	Super      string       `yaml:"super,omitempty"`
	Interfaces []string     `yaml:"interfaces,omitempty"`
	Flags      []string     `yaml:"flags,omitempty"`
	Fields     []FieldSpec  `yaml:"fields,omitempty"`
	Methods    []MethodSpec `yaml:"methods,omitempty"`
}

// FieldSpec describes one field.
type FieldSpec struct {
	Name  string   `yaml:"name"`
	Type  string   `yaml:"type"`
	Flags []string `yaml:"flags,omitempty"`
}

// MethodSpec describes one method. Code lists instructions in the textual
// form accepted by model.ParseInstruction.
type MethodSpec struct {
	Sig   string   `yaml:"sig"`
	Flags []string `yaml:"flags,omitempty"`
	Code  []string `yaml:"code,omitempty"`
}

// Snapshot is a decoded, validated snapshot.
type Snapshot struct {
	// Name identifies the snapshot in results, usually its file path.
	Name string

	Program *model.Program

	// Keep holds the raw entry point rules.
	Keep []string

	// MinVersion is the compilation floor version.
	MinVersion *platform.Version

	Versions *platform.Table
}

// DefaultMinVersion is the floor used when a snapshot names none.
const DefaultMinVersion = "v1"

// Load reads and decodes the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	s, err := Parse(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a snapshot from YAML.
func Parse(name string, data []byte) (*Snapshot, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return f.Build(name)
}

// Build validates f and assembles its program model.
func (f *File) Build(name string) (*Snapshot, error) {
	classes := make([]*model.Class, 0, len(f.Classes))
	for i := range f.Classes {
		c, err := f.Classes[i].build()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	prog, err := model.NewProgram(model.ClassRef(f.Root), classes)
	if err != nil {
		return nil, err
	}

	floor := f.MinVersion
	if floor == "" {
		floor = DefaultMinVersion
	}
	minVersion, err := platform.Parse(floor)
	if err != nil {
		return nil, fmt.Errorf("min_version: %w", err)
	}
	if minVersion.IsUnknown() {
		return nil, errors.New("min_version: must be a concrete version")
	}
	versions, err := platform.NewTable(f.Versions)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Name:       name,
		Program:    prog,
		Keep:       f.Keep,
		MinVersion: minVersion,
		Versions:   versions,
	}, nil
}

func (s *ClassSpec) build() (*model.Class, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: class without name", model.ErrMalformed)
	}
	origin, ok := model.ParseOrigin(s.Origin)
	if !ok {
		return nil, fmt.Errorf("%w: class %s: unknown origin %q", model.ErrMalformed, s.Name, s.Origin)
	}
	flags, err := model.ParseClassFlags(s.Flags)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", s.Name, err)
	}
	interfaces := make([]model.ClassRef, len(s.Interfaces))
	for i, itf := range s.Interfaces {
		interfaces[i] = model.ClassRef(itf)
	}
	c := model.NewClass(model.ClassRef(s.Name), origin, model.ClassRef(s.Super), interfaces, flags)

	for _, fs := range s.Fields {
		flags, err := model.ParseMemberFlags(fs.Flags)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", s.Name, fs.Name, err)
		}
		if _, err := c.AddField(fs.Name, fs.Type, flags); err != nil {
			return nil, err
		}
	}
	for _, ms := range s.Methods {
		sig, err := model.ParseMethodSignature(ms.Sig)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", s.Name, err)
		}
		flags, err := model.ParseMemberFlags(ms.Flags)
		if err != nil {
			return nil, fmt.Errorf("method %s#%s: %w", s.Name, sig, err)
		}
		var code *model.Code
		if len(ms.Code) > 0 {
			code = &model.Code{Instructions: make([]model.Instruction, 0, len(ms.Code))}
			for _, text := range ms.Code {
				insn, err := model.ParseInstruction(text)
				if err != nil {
					return nil, fmt.Errorf("method %s#%s: %w", s.Name, sig, err)
				}
				code.Instructions = append(code.Instructions, insn)
			}
		}
		if _, err := c.AddMethod(sig, flags, code); err != nil {
			return nil, err
		}
	}
	return c, nil
}
