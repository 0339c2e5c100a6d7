package pytd

import (
	"slices"
	"strings"
)

const indentUnit = "    "

// typingNames are the names that Print imports from typing when a stub uses
// them.
var typingNames = map[string]bool{
	NameAny:       true,
	NameOptional:  true,
	"AbstractSet": true,
	"Callable":    true,
	"Iterable":    true,
	"Iterator":    true,
	"Mapping":     true,
	"Sequence":    true,
	"Type":        true,
}

// Print serializes m as stub text. The result always ends with a newline.
func Print(m *Module) string {
	var sections []string

	if header := printHeader(m); header != "" {
		sections = append(sections, header)
	}

	if len(m.Constants) > 0 {
		var sb strings.Builder
		for _, c := range m.Constants {
			writeConstant(&sb, c, "")
		}

		sections = append(sections, sb.String())
	}

	for _, c := range m.Classes {
		var sb strings.Builder
		writeClass(&sb, c)
		sections = append(sections, sb.String())
	}

	if len(m.Functions) > 0 {
		var sb strings.Builder
		for _, fn := range m.Functions {
			writeFunction(&sb, fn, "")
		}

		sections = append(sections, sb.String())
	}

	if len(sections) == 0 {
		return "\n"
	}

	return strings.Join(sections, "\n")
}

// PrintType returns the stub spelling of t; nil prints as Any.
func PrintType(t Type) string {
	if t == nil {
		return NameAny
	}

	return t.String()
}

// PrintSignature returns the one-line form of sig as it appears after "def name".
func PrintSignature(sig Signature) string {
	return "(" + printParams(sig.Params) + ") -> " + PrintType(sig.Return)
}

func writeConstant(sb *strings.Builder, c Constant, indent string) {
	sb.WriteString(indent)
	sb.WriteString(c.Name)
	sb.WriteString(": ")
	sb.WriteString(PrintType(c.Type))
	sb.WriteByte('\n')
}

func writeClass(sb *strings.Builder, c Class) {
	sb.WriteString("class ")
	sb.WriteString(c.Name)

	if len(c.Bases) > 0 {
		sb.WriteByte('(')
		sb.WriteString(joinTypes(c.Bases))
		sb.WriteByte(')')
	}

	if len(c.Constants) == 0 && len(c.Methods) == 0 {
		sb.WriteString(": ...\n")

		return
	}

	sb.WriteString(":\n")

	for _, attr := range c.Constants {
		writeConstant(sb, attr, indentUnit)
	}

	for _, method := range c.Methods {
		writeFunction(sb, method, indentUnit)
	}
}

func writeFunction(sb *strings.Builder, fn Function, indent string) {
	overloaded := len(fn.Signatures) > 1

	for _, sig := range fn.Signatures {
		if dec := fn.Kind.Decorator(); dec != "" {
			sb.WriteString(indent + "@" + dec + "\n")
		}

		if overloaded {
			sb.WriteString(indent + "@overload\n")
		}

		sb.WriteString(indent)
		sb.WriteString("def ")
		sb.WriteString(fn.Name)
		sb.WriteString(PrintSignature(sig))
		sb.WriteString(": ...\n")
	}
}

func printParams(params []Param) string {
	parts := make([]string, len(params))

	for i, p := range params {
		var sb strings.Builder

		switch p.Kind {
		case ParamVarargs:
			sb.WriteString("*")
		case ParamKwargs:
			sb.WriteString("**")
		case ParamRegular:
		}

		sb.WriteString(p.Name)

		if p.Type != nil {
			sb.WriteString(": ")
			sb.WriteString(p.Type.String())
		}

		if p.Optional && p.Kind == ParamRegular {
			sb.WriteString(" = ...")
		}

		parts[i] = sb.String()
	}

	return strings.Join(parts, ", ")
}

func printHeader(m *Module) string {
	typing := make(map[string]bool)
	modules := make(map[string]bool)

	var visit func(t Type)
	visit = func(t Type) {
		switch v := t.(type) {
		case Named:
			noteName(v.Name, typing, modules)
		case Generic:
			noteName(v.Base, typing, modules)

			for _, p := range v.Params {
				visit(p)
			}
		case Union:
			if len(v.Types) == 0 {
				typing[NameAny] = true

				return
			}

			typing[NameUnion] = true

			for _, member := range v.Types {
				visit(member)
			}
		case nil:
			typing[NameAny] = true
		}
	}

	walkFunctions := func(list []Function) {
		for _, fn := range list {
			if len(fn.Signatures) > 1 {
				typing["overload"] = true
			}

			for _, sig := range fn.Signatures {
				for _, p := range sig.Params {
					if p.Type != nil {
						visit(p.Type)
					}
				}

				visit(sig.Return)
			}
		}
	}

	for _, c := range m.Constants {
		visit(c.Type)
	}

	for _, c := range m.Classes {
		for _, base := range c.Bases {
			visit(base)
		}

		for _, attr := range c.Constants {
			visit(attr.Type)
		}

		walkFunctions(c.Methods)
	}

	walkFunctions(m.Functions)

	var lines []string

	if len(typing) > 0 {
		names := make([]string, 0, len(typing))
		for name := range typing {
			if name == NameUnknown {
				names = append(names, NameAny+" as "+NameUnknown)

				continue
			}

			names = append(names, name)
		}

		slices.Sort(names)
		lines = append(lines, "from typing import "+strings.Join(names, ", "))
	}

	imports := make([]string, 0, len(modules))
	for mod := range modules {
		imports = append(imports, mod)
	}

	slices.Sort(imports)

	for _, mod := range imports {
		lines = append(lines, "import "+mod)
	}

	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

func noteName(name string, typing, modules map[string]bool) {
	if typingNames[name] || name == NameUnknown {
		typing[name] = true

		return
	}

	// "..." and relative names never need an import.
	if strings.HasPrefix(name, ".") {
		return
	}

	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		modules[name[:dot]] = true
	}
}

// PrintConstant returns the stub line of c.
func PrintConstant(c Constant) string {
	var sb strings.Builder
	writeConstant(&sb, c, "")

	return sb.String()
}

// PrintClass returns the stub block of c.
func PrintClass(c Class) string {
	var sb strings.Builder
	writeClass(&sb, c)

	return sb.String()
}

// PrintFunction returns the stub lines of fn, one definition per signature.
func PrintFunction(fn Function) string {
	var sb strings.Builder
	writeFunction(&sb, fn, "")

	return sb.String()
}
