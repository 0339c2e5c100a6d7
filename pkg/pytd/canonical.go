package pytd

import (
	"cmp"
	"slices"
)

// Canonicalize returns a copy of m in canonical order: declarations sorted by
// name, same-name functions merged, and every function's signatures sorted by
// their printed form. All sorts are stable, so equal keys keep input order.
func Canonicalize(m *Module) *Module {
	out := m.Clone()

	sortConstants(out.Constants)
	out.Functions = canonicalFunctions(out.Functions)

	for i := range out.Classes {
		sortConstants(out.Classes[i].Constants)
		out.Classes[i].Methods = canonicalFunctions(out.Classes[i].Methods)
	}

	slices.SortStableFunc(out.Classes, func(a, b Class) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return out
}

func sortConstants(list []Constant) {
	slices.SortStableFunc(list, func(a, b Constant) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

func canonicalFunctions(list []Function) []Function {
	merged := mergeByName(list)

	for i := range merged {
		slices.SortStableFunc(merged[i].Signatures, func(a, b Signature) int {
			return cmp.Compare(PrintSignature(a), PrintSignature(b))
		})
	}

	slices.SortStableFunc(merged, func(a, b Function) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return merged
}

// mergeByName folds functions sharing a name into the first of them.
func mergeByName(list []Function) []Function {
	if len(list) == 0 {
		return list
	}

	index := make(map[string]int, len(list))
	out := make([]Function, 0, len(list))

	for _, fn := range list {
		if at, ok := index[fn.Name]; ok {
			out[at].Signatures = append(out[at].Signatures, fn.Signatures...)

			continue
		}

		index[fn.Name] = len(out)
		out = append(out, fn)
	}

	return out
}
