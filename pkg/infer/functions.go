package infer

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

type callKey struct {
	fn   *funcDef
	args string
}

// call applies callee to args.
func (a *analyzer) call(callee symbol, args callArgs, line int, fr *frame) pytd.Type {
	switch callee.kind {
	case symFunc:
		return a.callLocal(callee.fn, callee.typ, args, line, fr)
	case symClass:
		instance := callee.class.instanceType()

		if init, ok := callee.class.method("__init__"); ok {
			a.callLocal(init, instance, args, line, fr)
		}

		return instance
	case symStubFunc:
		return a.callStub(callee.stubFn, callee.module, callee.typ, args, line)
	case symStubClass:
		return a.construct(callee.stubClass, args)
	default:
		return pytd.AnyType
	}
}

// construct is the instance type produced by calling a stub class.
func (a *analyzer) construct(class *stubClass, args callArgs) pytd.Type {
	elem := pytd.AnyType
	if len(args.positional) == 1 {
		elem = elemType(args.positional[0])
	}

	switch class.qualified {
	case typeList, typeSet, typeFrozenset:
		return pytd.GenericType(class.qualified, elem)
	case typeDict:
		return pytd.GenericType(typeDict, pytd.AnyType, pytd.AnyType)
	case typeTuple:
		return pytd.GenericType(typeTuple, elem, ellipsisType)
	default:
		return pytd.NamedType(class.qualified)
	}
}

// bindArgs maps call arguments onto fn's parameters. Receiver fills the first
// parameter of bound methods. The result holds one type per parameter.
func (a *analyzer) bindArgs(fn *funcDef, receiver pytd.Type, args callArgs, line int) []pytd.Type {
	bound := make([]pytd.Type, len(fn.params))
	next := 0

	if fn.isMethod() && receiver != nil && len(fn.params) > 0 {
		bound[0] = receiver
		next = 1
	}

	varargs, kwargs := -1, -1

	for i, p := range fn.params {
		switch p.kind {
		case pytd.ParamVarargs:
			varargs = i
		case pytd.ParamKwargs:
			kwargs = i
		case pytd.ParamRegular:
		}
	}

	for _, t := range args.positional {
		for next < len(fn.params) && fn.params[next].kind != pytd.ParamRegular {
			next++
		}

		if next < len(fn.params) && (varargs < 0 || next < varargs) {
			bound[next] = t
			next++

			continue
		}

		if varargs < 0 {
			a.report(line, diag.KindWrongArgCount, "Function %s was called with %d args, too many positional arguments", fn.name, args.count())

			break
		}
	}

	for _, name := range args.keywordOrder {
		idx := fn.paramIndex(name)

		switch {
		case idx >= 0 && bound[idx] == nil:
			bound[idx] = args.keywords[name]
		case idx >= 0:
			a.report(line, diag.KindWrongArgCount, "Function %s got multiple values for argument %q", fn.name, name)
		case kwargs < 0:
			a.report(line, diag.KindWrongArgCount, "Function %s got an unexpected keyword argument %q", fn.name, name)
		}
	}

	for i, p := range fn.params {
		if bound[i] != nil || p.kind != pytd.ParamRegular {
			continue
		}

		if p.hasDefault {
			bound[i] = a.defaultType(p)

			continue
		}

		if !args.splat {
			a.report(line, diag.KindWrongArgCount, "Missing parameter %q in call to function %s", p.name, fn.name)
		}

		bound[i] = pytd.AnyType
	}

	return bound
}

func (f *funcDef) paramIndex(name string) int {
	for i, p := range f.params {
		if p.name == name && p.kind == pytd.ParamRegular {
			return i
		}
	}

	return -1
}

func (a *analyzer) defaultType(p paramDef) pytd.Type {
	if p.annotation != nil {
		return p.annotation
	}

	return a.eval(p.value, newScope(nil), nil)
}

func (a *analyzer) callLocal(fn *funcDef, receiver pytd.Type, args callArgs, line int, fr *frame) pytd.Type {
	a.noteEdge(fr, fn)

	bound := a.bindArgs(fn, receiver, args, line)

	if a.recording {
		fn.recordCall(a.callSiteTypes(fn, bound))
	}

	return a.returnType(fn, bound, fr.callDepth()+1)
}

// callSiteTypes drops the receiver and the splat parameters.
func (a *analyzer) callSiteTypes(fn *funcDef, bound []pytd.Type) []pytd.Type {
	out := make([]pytd.Type, 0, len(bound))

	for i, p := range fn.params {
		if i == 0 && fn.isMethod() {
			continue
		}

		if p.kind == pytd.ParamRegular {
			out = append(out, bound[i])
		}
	}

	return out
}

// returnType is the return type of fn for the given parameter types, bounded
// by the maximum call depth and guarded against recursion.
func (a *analyzer) returnType(fn *funcDef, params []pytd.Type, depth int) pytd.Type {
	if fn.returns != nil {
		return fn.returns
	}

	if a.opts.MaximumDepth > 0 && depth > a.opts.MaximumDepth {
		return pytd.AnyType
	}

	if a.active[fn] > 0 {
		return pytd.AnyType
	}

	key := callKey{fn: fn, args: typesKey(params)}

	if a.calls != nil {
		if cached, ok := a.calls.Get(key); ok {
			return cached
		}
	}

	result := a.analyzeBody(fn, params, depth)

	if a.calls != nil {
		a.calls.Add(key, result)
	}

	return result
}

func (a *analyzer) analyzeBody(fn *funcDef, params []pytd.Type, depth int) pytd.Type {
	a.active[fn]++
	defer func() { a.active[fn]-- }()

	sc := newScope(nil)
	sc.self = fn.owner

	for i, p := range fn.params {
		switch {
		case p.kind == pytd.ParamVarargs:
			sc.bind(p.name, pytd.GenericType(typeTuple, orAny(p.annotation), ellipsisType))
		case p.kind == pytd.ParamKwargs:
			sc.bind(p.name, pytd.GenericType(typeDict, strType, orAny(p.annotation)))
		case i < len(params) && params[i] != nil:
			sc.bind(p.name, params[i])
		default:
			sc.bind(p.name, pytd.UnknownType)
		}
	}

	fr := &frame{fn: fn, depth: depth}

	body, ok := pysyntax.Field(fn.node, "body")
	if !ok {
		return pytd.AnyType
	}

	a.execBlock(body, sc, fr)

	if len(fr.yields) > 0 {
		return pytd.GenericType(typeIterator, orAny(pytd.Join(fr.yields...)))
	}

	returns := fr.returns
	if !a.terminates(body) {
		returns = append(returns, pytd.NoneType)
	}

	return orAny(pytd.Join(returns...))
}

// terminates reports whether control never falls off the end of block.
func (a *analyzer) terminates(block sitter.Node) bool {
	stmts := pysyntax.Children(block)
	if len(stmts) == 0 {
		return false
	}

	last := stmts[len(stmts)-1]

	switch last.Type() {
	case pysyntax.TypeReturn, pysyntax.TypeRaise:
		return true
	case pysyntax.TypeIf:
		consequence, ok := pysyntax.Field(last, "consequence")
		if !ok || !a.terminates(consequence) {
			return false
		}

		hasElse := false

		for _, clause := range pysyntax.Children(last) {
			switch clause.Type() {
			case pysyntax.TypeElifClause:
				inner, _ := pysyntax.Field(clause, "consequence")
				if !a.terminates(inner) {
					return false
				}
			case pysyntax.TypeElseClause:
				inner, _ := pysyntax.Field(clause, "body")
				if !a.terminates(inner) {
					return false
				}

				hasElse = true
			}
		}

		return hasElse
	default:
		return false
	}
}

// callStub picks the first signature of fn accepting args. A receiver drops
// the first parameter of methods.
func (a *analyzer) callStub(fn *pytd.Function, owner *moduleRef, receiver pytd.Type, args callArgs, line int) pytd.Type {
	var returns []pytd.Type

	for _, sig := range fn.Signatures {
		params := sig.Params
		if receiver != nil && fn.Kind != pytd.KindStaticMethod && len(params) > 0 {
			params = params[1:]
		}

		ret := owner.qualify(orAny(sig.Return))
		if accepts(params, args) {
			return ret
		}

		returns = append(returns, ret)
	}

	if !args.splat && len(fn.Signatures) > 0 {
		a.report(line, diag.KindWrongArgCount, "Function %s was called with %d args", fn.Name, args.count())
	}

	return orAny(pytd.Join(returns...))
}

func accepts(params []pytd.Param, args callArgs) bool {
	if args.splat {
		return true
	}

	var regular []pytd.Param

	varargs, kwargs := false, false

	for _, p := range params {
		switch p.Kind {
		case pytd.ParamVarargs:
			varargs = true
		case pytd.ParamKwargs:
			kwargs = true
		case pytd.ParamRegular:
			regular = append(regular, p)
		}
	}

	if len(args.positional) > len(regular) && !varargs {
		return false
	}

	filled := make([]bool, len(regular))
	for i := range min(len(args.positional), len(regular)) {
		filled[i] = true
	}

	for _, name := range args.keywordOrder {
		found := false

		for i, p := range regular {
			if p.Name == name {
				if filled[i] {
					return false
				}

				filled[i] = true
				found = true
			}
		}

		if !found && !kwargs {
			return false
		}
	}

	for i, p := range regular {
		if !filled[i] && !p.Optional {
			return false
		}
	}

	return true
}

// signatures builds the stub signatures of fn: one per distinct call site in
// entry scope, or a single standalone signature otherwise.
func (a *analyzer) signatures(fn *funcDef) []pytd.Signature {
	if a.opts.Deep || len(fn.calls) == 0 {
		return []pytd.Signature{a.standalone(fn)}
	}

	sigs := make([]pytd.Signature, 0, len(fn.calls))

	for _, call := range fn.calls {
		bound := make([]pytd.Type, len(fn.params))
		next := 0

		for i, p := range fn.params {
			switch {
			case i == 0 && fn.isMethod():
				bound[i] = a.receiverType(fn)
			case p.kind != pytd.ParamRegular:
			case next < len(call):
				bound[i] = call[next]
				next++
			}
		}

		sigs = append(sigs, a.signature(fn, bound))
	}

	return sigs
}

// standalone analyzes fn without call-site information. Parameters without
// annotation or default are unknown.
func (a *analyzer) standalone(fn *funcDef) pytd.Signature {
	if a.unknowns != nil {
		if sig, ok := a.unknowns.Get(fn); ok {
			return sig
		}
	}

	bound := make([]pytd.Type, len(fn.params))

	for i, p := range fn.params {
		switch {
		case i == 0 && fn.isMethod():
			bound[i] = a.receiverType(fn)
		case p.kind != pytd.ParamRegular:
		case p.annotation != nil:
			bound[i] = p.annotation
		case p.hasDefault:
			bound[i] = a.defaultType(p)
		default:
			bound[i] = pytd.UnknownType
		}
	}

	sig := a.signature(fn, bound)

	if a.unknowns != nil {
		a.unknowns.Add(fn, sig)
	}

	return sig
}

func (a *analyzer) receiverType(fn *funcDef) pytd.Type {
	if fn.kind == pytd.KindClassMethod {
		return pytd.GenericType(typeType, fn.owner.instanceType())
	}

	return fn.owner.instanceType()
}

func (a *analyzer) signature(fn *funcDef, bound []pytd.Type) pytd.Signature {
	sig := pytd.Signature{Params: make([]pytd.Param, 0, len(fn.params))}

	for i, p := range fn.params {
		param := pytd.Param{Name: p.name, Optional: p.hasDefault, Kind: p.kind}

		switch {
		case i == 0 && fn.isMethod():
		case p.kind != pytd.ParamRegular:
			param.Type = p.annotation
		case p.annotation != nil:
			param.Type = p.annotation
		default:
			param.Type = orAny(bound[i])
		}

		sig.Params = append(sig.Params, param)
	}

	sig.Return = a.returnType(fn, bound, 1)

	return sig
}
