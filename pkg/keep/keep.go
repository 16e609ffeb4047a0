// Package keep implements ProGuard-style entry point rules.
//
// A rule names the classes and members that are reachable from outside the
// program:
//
//	-keep class com.example.Main { void main(java.lang.String[]); }
//	-keep class com.example.api.** { <init>(...); <methods>; }
//	-keepclassmembers class com.example.*Model { <fields>; }
//
// In class patterns "*" matches any part of a name without dots and "**"
// matches any sequence of characters.
package keep

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/715d/treeshake/pkg/model"
)

// RuleType is the kind of a keep rule.
type RuleType int

const (
	// RuleKeep keeps the matching classes and their listed members.
	RuleKeep RuleType = iota

	// RuleKeepClassMembers keeps the listed members of matching classes,
	// but not the classes themselves.
	RuleKeepClassMembers
)

// String returns the rule directive.
func (t RuleType) String() string {
	if t == RuleKeepClassMembers {
		return "-keepclassmembers"
	}
	return "-keep"
}

// MemberKind is the kind of a member pattern.
type MemberKind int

const (
	MemberAll     MemberKind = iota // *
	MemberMethods                   // <methods>
	MemberFields                    // <fields>
	MemberMethod                    // a method signature, including <init>
	MemberField                     // "type name"
)

// MemberSpec selects members of a matching class.
type MemberSpec struct {
	Kind MemberKind

	// Signature of a MemberMethod pattern. Params is ignored when AnyParams
	// is set.
	Signature model.MethodSignature
	AnyParams bool

	// Name and Type of a MemberField pattern.
	Name string
	Type string
}

// Rule is a parsed keep rule.
type Rule struct {
	Type    RuleType
	Text    string
	Pattern string
	Members []MemberSpec

	class *regexp.Regexp
}

// Rule syntax patterns.
var (
	// rulePattern matches a whole rule: directive, class keyword, class
	// pattern and an optional member block.
	rulePattern = regexp.MustCompile(`^-(keep|keepclassmembers)\s+(?:class|interface)\s+([\w.$*?]+)\s*(?:\{([^}]*)\})?\s*$`)

	// modifierPattern matches access modifiers accepted and ignored in
	// member patterns.
	modifierPattern = regexp.MustCompile(`^(?:(?:public|private|protected|static|final|native|abstract|synchronized)\s+)+`)
)

// ParseRule parses one rule.
func ParseRule(text string) (*Rule, error) {
	text = strings.TrimSpace(text)
	matches := rulePattern.FindStringSubmatch(text)
	if matches == nil {
		return nil, fmt.Errorf("invalid keep rule %q", text)
	}
	r := &Rule{
		Type:    RuleKeep,
		Text:    text,
		Pattern: matches[2],
	}
	if matches[1] == "keepclassmembers" {
		r.Type = RuleKeepClassMembers
	}
	class, err := compilePattern(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("keep rule %q: %w", text, err)
	}
	r.class = class

	for member := range strings.SplitSeq(matches[3], ";") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		m, err := parseMember(member)
		if err != nil {
			return nil, fmt.Errorf("keep rule %q: %w", text, err)
		}
		r.Members = append(r.Members, m)
	}
	if r.Type == RuleKeepClassMembers && len(r.Members) == 0 {
		return nil, fmt.Errorf("keep rule %q: no members", text)
	}
	return r, nil
}

// Parse parses a list of rules. Blank lines and lines starting with '#'
// are skipped.
func Parse(lines []string) ([]*Rule, error) {
	var rules []*Rule
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := ParseRule(line)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// compilePattern translates a class name wildcard into an anchored regexp.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(`.*`)
				i++
			} else {
				b.WriteString(`[^.]*`)
			}
		case '?':
			b.WriteString(`[^.]`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

func parseMember(text string) (MemberSpec, error) {
	text = modifierPattern.ReplaceAllString(text, "")
	switch text {
	case "*":
		return MemberSpec{Kind: MemberAll}, nil
	case "<methods>":
		return MemberSpec{Kind: MemberMethods}, nil
	case "<fields>":
		return MemberSpec{Kind: MemberFields}, nil
	}

	if strings.Contains(text, "(") {
		anyParams := strings.Contains(text, "(...)")
		if anyParams {
			text = strings.Replace(text, "(...)", "()", 1)
		}
		sig, err := model.ParseMethodSignature(text)
		if err != nil {
			return MemberSpec{}, err
		}
		return MemberSpec{Kind: MemberMethod, Signature: sig, AnyParams: anyParams}, nil
	}

	parts := strings.Fields(text)
	if len(parts) != 2 {
		return MemberSpec{}, fmt.Errorf("invalid member %q", text)
	}
	return MemberSpec{Kind: MemberField, Type: parts[0], Name: parts[1]}, nil
}

// MatchesClass reports whether the rule's class pattern matches name.
func (r *Rule) MatchesClass(name model.ClassRef) bool {
	return r.class.MatchString(string(name))
}

// MatchesMethod reports whether a member pattern of the rule selects m.
func (r *Rule) MatchesMethod(m *model.Method) bool {
	return slices.ContainsFunc(r.Members, func(s MemberSpec) bool {
		switch s.Kind {
		case MemberAll:
			return true
		case MemberMethods:
			return m.Signature.Name != model.ClassInitializerName && !m.IsInstanceInitializer()
		case MemberMethod:
			sig := m.Signature
			if sig.Name != s.Signature.Name || sig.Return != s.Signature.Return {
				return false
			}
			return s.AnyParams || sig.Params == s.Signature.Params
		}
		return false
	})
}

// MatchesField reports whether a member pattern of the rule selects f.
func (r *Rule) MatchesField(f *model.Field) bool {
	return slices.ContainsFunc(r.Members, func(s MemberSpec) bool {
		switch s.Kind {
		case MemberAll, MemberFields:
			return true
		case MemberField:
			return f.Name == s.Name && f.Type == s.Type
		}
		return false
	})
}

// Roots are the entry points selected by a rule set.
type Roots struct {
	Classes []*model.Class
	Methods []*model.Method
	Fields  []*model.Field

	// Instantiated lists concrete classes with a kept constructor. They are
	// allocated from an unknown context.
	Instantiated []*model.Class
}

// Len returns the total number of roots.
func (r *Roots) Len() int {
	return len(r.Classes) + len(r.Methods) + len(r.Fields) + len(r.Instantiated)
}

// Select applies rules to the program classes of prog. Roots are returned
// in class ID and declaration order, each once.
func Select(prog *model.Program, rules []*Rule) *Roots {
	roots := &Roots{}
	for _, c := range prog.Classes() {
		if !c.IsProgram() {
			continue
		}
		var keepClass, instantiated bool
		keptMethods := make(map[*model.Method]bool)
		keptFields := make(map[*model.Field]bool)
		for _, r := range rules {
			if !r.MatchesClass(c.Name) {
				continue
			}
			if r.Type == RuleKeep {
				keepClass = true
			}
			for _, m := range c.Methods {
				if r.MatchesMethod(m) {
					keptMethods[m] = true
					if m.IsInstanceInitializer() && !c.IsAbstract() {
						instantiated = true
					}
				}
			}
			for _, f := range c.Fields {
				if r.MatchesField(f) {
					keptFields[f] = true
				}
			}
		}

		if keepClass {
			roots.Classes = append(roots.Classes, c)
		}
		if instantiated {
			roots.Instantiated = append(roots.Instantiated, c)
		}
		for _, m := range c.Methods {
			if keptMethods[m] {
				roots.Methods = append(roots.Methods, m)
			}
		}
		for _, f := range c.Fields {
			if keptFields[f] {
				roots.Fields = append(roots.Fields, f)
			}
		}
	}
	return roots
}
