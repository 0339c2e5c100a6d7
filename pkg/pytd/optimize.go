package pytd

// DefaultMaxUnionWidth is the widest union the optimizer keeps by default.
const DefaultMaxUnionWidth = 7

// Options tune Optimize.
type Options struct {
	// Lossy merges containers of the same base inside a union, e.g.
	// Union[list[int], list[str]] becomes list[Union[int, str]].
	Lossy bool
	// UseABCs lets the numeric tower absorb narrower members: int into float,
	// float into complex.
	UseABCs bool
	// MaxUnionWidth collapses wider unions to Any. Zero disables the cap.
	MaxUnionWidth int
	// RemoveMutable widens mutable container parameters to their read-only
	// protocols.
	RemoveMutable bool
}

// DefaultOptions are the settings generated stubs are optimized with.
func DefaultOptions() Options {
	return Options{MaxUnionWidth: DefaultMaxUnionWidth}
}

var readOnlyBases = map[string]string{
	"list": "Sequence",
	"dict": "Mapping",
	"set":  "AbstractSet",
}

var numericTower = [][2]string{
	{"int", "float"},
	{"float", "complex"},
}

// Optimize returns a simplified copy of m: unions are flattened and
// deduplicated, Any absorbs its siblings, over-wide unions collapse to Any,
// duplicate signatures are dropped and signatures with identical parameters
// are combined into one with a union return.
func Optimize(m *Module, opts Options) *Module {
	out := m.MapTypes(func(t Type) Type {
		return simplify(t, opts)
	})

	out.Functions = optimizeFunctions(out.Functions, opts)

	for i := range out.Classes {
		out.Classes[i].Methods = optimizeFunctions(out.Classes[i].Methods, opts)
	}

	return out
}

func optimizeFunctions(list []Function, opts Options) []Function {
	for i := range list {
		sigs := removeDuplicateSignatures(list[i].Signatures)
		sigs = combineReturns(sigs, opts)

		if opts.RemoveMutable {
			for j := range sigs {
				for k := range sigs[j].Params {
					if sigs[j].Params[k].Type != nil {
						sigs[j].Params[k].Type = readOnly(sigs[j].Params[k].Type)
					}
				}
			}
		}

		list[i].Signatures = sigs
	}

	return list
}

func removeDuplicateSignatures(sigs []Signature) []Signature {
	seen := make(map[string]bool, len(sigs))
	out := sigs[:0]

	for _, sig := range sigs {
		key := PrintSignature(sig)
		if seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, sig)
	}

	return out
}

func combineReturns(sigs []Signature, opts Options) []Signature {
	index := make(map[string]int, len(sigs))
	out := make([]Signature, 0, len(sigs))

	for _, sig := range sigs {
		key := printParams(sig.Params)

		if at, ok := index[key]; ok {
			out[at].Return = simplify(Join(out[at].Return, sig.Return), opts)

			continue
		}

		index[key] = len(out)
		out = append(out, sig)
	}

	return out
}

func simplify(t Type, opts Options) Type {
	switch v := t.(type) {
	case Generic:
		params := make([]Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = simplify(p, opts)
		}

		return Generic{Base: v.Base, Params: params}
	case Union:
		return simplifyUnion(v, opts)
	default:
		return t
	}
}

func simplifyUnion(u Union, opts Options) Type {
	members := make([]Type, 0, len(u.Types))
	for _, m := range u.Types {
		members = append(members, simplify(m, opts))
	}

	joined := Join(members...)

	flat, ok := joined.(Union)
	if !ok {
		if joined == nil {
			return AnyType
		}

		return joined
	}

	members = flat.Types

	for _, absorbing := range []string{NameAny, NameUnknown} {
		for _, m := range members {
			if n, isNamed := m.(Named); isNamed && n.Name == absorbing {
				return n
			}
		}
	}

	if opts.UseABCs {
		members = applyNumericTower(members)
	}

	if opts.Lossy {
		members = mergeContainers(members, opts)
	}

	if len(members) == 1 {
		return members[0]
	}

	if opts.MaxUnionWidth > 0 && len(members) > opts.MaxUnionWidth {
		return AnyType
	}

	return Union{Types: members}
}

func applyNumericTower(members []Type) []Type {
	present := make(map[string]bool, len(members))
	for _, m := range members {
		present[m.String()] = true
	}

	drop := make(map[string]bool)

	for _, pair := range numericTower {
		if present[pair[0]] && present[pair[1]] {
			drop[pair[0]] = true
		}
	}

	if len(drop) == 0 {
		return members
	}

	out := make([]Type, 0, len(members))

	for _, m := range members {
		if !drop[m.String()] {
			out = append(out, m)
		}
	}

	return out
}

func mergeContainers(members []Type, opts Options) []Type {
	type slot struct {
		at     int
		params [][]Type
	}

	slots := make(map[string]*slot)
	out := make([]Type, 0, len(members))

	for _, m := range members {
		g, ok := m.(Generic)
		if !ok || len(g.Params) == 0 {
			out = append(out, m)

			continue
		}

		s, exists := slots[g.Base]
		if exists && len(s.params) == len(g.Params) {
			for i, p := range g.Params {
				s.params[i] = append(s.params[i], p)
			}

			continue
		}

		if exists {
			out = append(out, m)

			continue
		}

		s = &slot{at: len(out), params: make([][]Type, len(g.Params))}
		for i, p := range g.Params {
			s.params[i] = []Type{p}
		}

		slots[g.Base] = s
		out = append(out, g)
	}

	for base, s := range slots {
		params := make([]Type, len(s.params))
		for i, alternatives := range s.params {
			params[i] = simplify(Join(alternatives...), opts)
		}

		out[s.at] = Generic{Base: base, Params: params}
	}

	return out
}

func readOnly(t Type) Type {
	switch v := t.(type) {
	case Generic:
		base := v.Base
		if ro, ok := readOnlyBases[base]; ok {
			base = ro
		}

		return Generic{Base: base, Params: v.Params}
	case Union:
		members := make([]Type, len(v.Types))
		for i, m := range v.Types {
			members[i] = readOnly(m)
		}

		return Union{Types: members}
	default:
		return t
	}
}
