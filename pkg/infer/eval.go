package infer

import (
	"strconv"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

// Well-known builtin type names.
const (
	typeInt       = "int"
	typeFloat     = "float"
	typeComplex   = "complex"
	typeBool      = "bool"
	typeStr       = "str"
	typeBytes     = "bytes"
	typeList      = "list"
	typeDict      = "dict"
	typeSet       = "set"
	typeFrozenset = "frozenset"
	typeTuple     = "tuple"
	typeType      = "type"
	typeRange     = "range"
	typeIterator  = "Iterator"
	typeCallable  = "Callable"
)

var (
	intType      = pytd.NamedType(typeInt)
	floatType    = pytd.NamedType(typeFloat)
	complexType  = pytd.NamedType(typeComplex)
	boolType     = pytd.NamedType(typeBool)
	strType      = pytd.NamedType(typeStr)
	bytesType    = pytd.NamedType(typeBytes)
	callableType = pytd.NamedType(typeCallable)
	ellipsisType = pytd.NamedType("...")
)

var numericRank = map[string]int{
	typeBool:    1,
	typeInt:     1,
	typeFloat:   2,
	typeComplex: 3,
}

var rankType = map[int]pytd.Type{
	1: intType,
	2: floatType,
	3: complexType,
}

var operatorMethods = map[string]string{
	"+":  "__add__",
	"-":  "__sub__",
	"*":  "__mul__",
	"/":  "__truediv__",
	"//": "__floordiv__",
	"%":  "__mod__",
	"**": "__pow__",
	"@":  "__matmul__",
	"&":  "__and__",
	"|":  "__or__",
	"^":  "__xor__",
	"<<": "__lshift__",
	">>": "__rshift__",
}

// frame is the state of one function body analysis.
type frame struct {
	fn      *funcDef
	depth   int
	returns []pytd.Type
	yields  []pytd.Type
}

func (fr *frame) callDepth() int {
	if fr == nil {
		return 0
	}

	return fr.depth
}

func (fr *frame) declName() string {
	if fr == nil || fr.fn == nil {
		return moduleDecl
	}

	if fr.fn.owner != nil {
		return fr.fn.owner.name
	}

	return fr.fn.name
}

// callArgs are the evaluated arguments of one call.
type callArgs struct {
	positional   []pytd.Type
	keywords     map[string]pytd.Type
	keywordOrder []string
	splat        bool
}

func (c callArgs) count() int {
	return len(c.positional) + len(c.keywordOrder)
}

// eval returns the type of an expression.
func (a *analyzer) eval(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	switch node.Type() {
	case pysyntax.TypeIdentifier, pysyntax.TypeAttribute:
		sym, ok := a.evalSym(node, sc, fr)
		if !ok {
			return pytd.AnyType
		}

		return a.symType(sym)
	case pysyntax.TypeCall:
		return a.evalCall(node, sc, fr)
	case pysyntax.TypeInteger:
		return numberLiteral(a.tree.Text(node), intType)
	case pysyntax.TypeFloat:
		return numberLiteral(a.tree.Text(node), floatType)
	case pysyntax.TypeString:
		return stringLiteral(a.tree.Text(node))
	case pysyntax.TypeConcatString:
		if children := pysyntax.Children(node); len(children) > 0 {
			return stringLiteral(a.tree.Text(children[0]))
		}

		return strType
	case pysyntax.TypeTrue, pysyntax.TypeFalse:
		return boolType
	case pysyntax.TypeNone:
		return pytd.NoneType
	case pysyntax.TypeList:
		return pytd.GenericType(typeList, a.joinElements(pysyntax.Children(node), sc, fr))
	case pysyntax.TypeSet:
		return pytd.GenericType(typeSet, a.joinElements(pysyntax.Children(node), sc, fr))
	case pysyntax.TypeTuple, pysyntax.TypeExpressionList:
		return a.tupleType(pysyntax.Children(node), sc, fr)
	case pysyntax.TypeDictionary:
		return a.dictType(node, sc, fr)
	case pysyntax.TypeListComp, pysyntax.TypeSetComp, pysyntax.TypeGenerator, pysyntax.TypeDictComp:
		return a.comprehension(node, sc, fr)
	case pysyntax.TypeParenthesized:
		children := pysyntax.Children(node)
		if len(children) == 1 {
			return a.eval(children[0], sc, fr)
		}

		return pytd.AnyType
	case pysyntax.TypeBinaryOperator:
		left, _ := pysyntax.Field(node, "left")
		right, _ := pysyntax.Field(node, "right")
		op, _ := pysyntax.Field(node, "operator")

		return a.binary(node, op.Type(), a.eval(left, sc, fr), a.eval(right, sc, fr), fr)
	case pysyntax.TypeUnaryOperator:
		return a.unary(node, sc, fr)
	case pysyntax.TypeNot, pysyntax.TypeComparison:
		for _, child := range pysyntax.Children(node) {
			a.eval(child, sc, fr)
		}

		return boolType
	case pysyntax.TypeBooleanOperator:
		left, _ := pysyntax.Field(node, "left")
		right, _ := pysyntax.Field(node, "right")

		return pytd.Join(a.eval(left, sc, fr), a.eval(right, sc, fr))
	case pysyntax.TypeConditionalExpr:
		children := pysyntax.Children(node)
		if len(children) != 3 {
			return pytd.AnyType
		}

		a.eval(children[1], sc, fr)

		return pytd.Join(a.eval(children[0], sc, fr), a.eval(children[2], sc, fr))
	case pysyntax.TypeSubscript:
		return a.subscript(node, sc, fr)
	case pysyntax.TypeLambda:
		return callableType
	case pysyntax.TypeNamedExpr:
		name, _ := pysyntax.Field(node, "name")
		value, _ := pysyntax.Field(node, "value")
		t := a.eval(value, sc, fr)
		a.bindTarget(name, t, sc, fr)

		return t
	case pysyntax.TypeYield:
		return a.yield(node, sc, fr)
	default:
		return pytd.AnyType
	}
}

func numberLiteral(text string, base pytd.Type) pytd.Type {
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return complexType
	}

	return base
}

func stringLiteral(text string) pytd.Type {
	prefix, _, _ := strings.Cut(text, `"`)
	if strings.Contains(prefix, "'") {
		prefix, _, _ = strings.Cut(text, "'")
	}

	if strings.ContainsAny(prefix, "bB") {
		return bytesType
	}

	return strType
}

// symType is the type of a name used as a value.
func (a *analyzer) symType(sym symbol) pytd.Type {
	switch sym.kind {
	case symValue:
		if sym.typ == nil {
			return pytd.AnyType
		}

		return sym.typ
	case symFunc, symStubFunc:
		return callableType
	case symClass:
		return pytd.GenericType(typeType, sym.class.instanceType())
	case symStubClass:
		return pytd.GenericType(typeType, pytd.NamedType(sym.stubClass.qualified))
	default:
		return pytd.AnyType
	}
}

// evalSym resolves names and attribute chains to what they are bound to.
func (a *analyzer) evalSym(node sitter.Node, sc *scope, fr *frame) (symbol, bool) {
	switch node.Type() {
	case pysyntax.TypeIdentifier:
		name := a.tree.Text(node)

		sym, ok := a.lookup(name, sc)
		if !ok {
			if sc == nil && fr == nil {
				a.report(pysyntax.Line(node), diag.KindNameError, "Name %q is not defined", name)
			}

			return symbol{}, false
		}

		a.noteRef(fr, sym)

		return sym, true
	case pysyntax.TypeAttribute:
		object, _ := pysyntax.Field(node, "object")
		attrNode, _ := pysyntax.Field(node, "attribute")

		owner, ok := a.evalSym(object, sc, fr)
		if !ok {
			return symbol{}, false
		}

		return a.attribute(owner, a.tree.Text(attrNode), fr), true
	default:
		return valueSym(a.eval(node, sc, fr)), true
	}
}

func (a *analyzer) lookup(name string, sc *scope) (symbol, bool) {
	if sc != nil {
		if t, ok := sc.lookup(name); ok {
			return valueSym(t), true
		}
	}

	if sym, ok := a.globals[name]; ok {
		return sym, true
	}

	if sym, ok := a.builtinSym(name); ok {
		return sym, true
	}

	if builtinNames()[name] || a.bound[name] {
		return valueSym(pytd.AnyType), true
	}

	return symbol{}, false
}

func (a *analyzer) builtinSym(name string) (symbol, bool) {
	switch decl := a.builtins.Lookup(name).(type) {
	case *pytd.Function:
		return symbol{kind: symStubFunc, stubFn: decl}, true
	case *pytd.Class:
		return symbol{kind: symStubClass, stubClass: &stubClass{qualified: decl.Name, class: decl}}, true
	case *pytd.Constant:
		return valueSym(decl.Type), true
	default:
		return symbol{}, false
	}
}

// attribute resolves owner.name.
func (a *analyzer) attribute(owner symbol, name string, fr *frame) symbol {
	switch owner.kind {
	case symModule:
		ref := owner.module
		if ref.stub != nil {
			if sym, ok := ref.member(name); ok {
				return sym
			}
		}

		if sub, ok := a.imports.tryLoad(ref.name + "." + name); ok {
			return symbol{kind: symModule, module: sub}
		}

		return valueSym(pytd.AnyType)
	case symClass:
		if m, ok := owner.class.method(name); ok {
			if m.kind == pytd.KindClassMethod {
				return symbol{kind: symFunc, fn: m, typ: a.symType(owner)}
			}

			return symbol{kind: symFunc, fn: m}
		}

		if t, ok := owner.class.attr(name); ok {
			return valueSym(t)
		}
	case symStubClass:
		return a.stubMember(owner.stubClass, name, nil)
	case symValue:
		return a.instanceMember(owner.typ, name, fr)
	}

	return valueSym(pytd.AnyType)
}

// instanceMember resolves an attribute of a value of type t. Bound methods
// carry the receiver in typ.
func (a *analyzer) instanceMember(t pytd.Type, name string, fr *frame) symbol {
	if local := a.localClass(t); local != nil {
		if m, ok := local.method(name); ok {
			if m.kind == pytd.KindProperty {
				return valueSym(a.returnType(m, []pytd.Type{t}, fr.callDepth()+1))
			}

			return symbol{kind: symFunc, fn: m, typ: t}
		}

		if attr, ok := local.attr(name); ok {
			return valueSym(attr)
		}

		return valueSym(pytd.AnyType)
	}

	if stub := a.stubClassOf(t); stub != nil {
		return a.stubMember(stub, name, t)
	}

	return valueSym(pytd.AnyType)
}

func (a *analyzer) stubMember(stub *stubClass, name string, receiver pytd.Type) symbol {
	if fn, ok := stub.class.Method(name); ok {
		if fn.Kind == pytd.KindProperty && len(fn.Signatures) > 0 {
			return valueSym(stub.owner.qualify(fn.Signatures[0].Return))
		}

		return symbol{kind: symStubFunc, stubFn: fn, module: stub.owner, typ: receiver}
	}

	if attr, ok := stub.class.Attribute(name); ok {
		return valueSym(stub.owner.qualify(attr.Type))
	}

	return valueSym(pytd.AnyType)
}

// baseName returns the class name of a Named or Generic type.
func baseName(t pytd.Type) string {
	switch v := t.(type) {
	case pytd.Named:
		return v.Name
	case pytd.Generic:
		return v.Base
	default:
		return ""
	}
}

func (a *analyzer) localClass(t pytd.Type) *classDef {
	return a.classByName[baseName(t)]
}

// stubClassOf finds the builtin or imported class declaring t.
func (a *analyzer) stubClassOf(t pytd.Type) *stubClass {
	name := baseName(t)
	if name == "" {
		return nil
	}

	if class, ok := a.builtins.Lookup(name).(*pytd.Class); ok {
		return &stubClass{qualified: name, class: class}
	}

	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return nil
	}

	ref, ok := a.imports.loaded[name[:dot]]
	if !ok || ref.stub == nil {
		return nil
	}

	if class, ok := ref.stub.Lookup(name[dot+1:]).(*pytd.Class); ok {
		return &stubClass{qualified: name, class: class, owner: ref}
	}

	return nil
}

func (a *analyzer) evalArgs(node sitter.Node, sc *scope, fr *frame) callArgs {
	args := callArgs{keywords: make(map[string]pytd.Type)}

	if node.Type() == pysyntax.TypeGenerator {
		args.positional = append(args.positional, a.eval(node, sc, fr))

		return args
	}

	for _, arg := range pysyntax.Children(node) {
		switch arg.Type() {
		case pysyntax.TypeKeywordArgument:
			name, _ := pysyntax.Field(arg, "name")
			value, _ := pysyntax.Field(arg, "value")
			key := a.tree.Text(name)

			if _, dup := args.keywords[key]; !dup {
				args.keywordOrder = append(args.keywordOrder, key)
			}

			args.keywords[key] = a.eval(value, sc, fr)
		case pysyntax.TypeListSplatExpr, pysyntax.TypeDictSplatExpr:
			for _, child := range pysyntax.Children(arg) {
				a.eval(child, sc, fr)
			}

			args.splat = true
		default:
			args.positional = append(args.positional, a.eval(arg, sc, fr))
		}
	}

	return args
}

func (a *analyzer) evalCall(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	fnNode, _ := pysyntax.Field(node, "function")
	argNode, hasArgs := pysyntax.Field(node, "arguments")

	callee, ok := a.evalSym(fnNode, sc, fr)

	var args callArgs
	if hasArgs {
		args = a.evalArgs(argNode, sc, fr)
	}

	if !ok {
		return pytd.AnyType
	}

	return a.call(callee, args, pysyntax.Line(node), fr)
}

func (a *analyzer) joinElements(elems []sitter.Node, sc *scope, fr *frame) pytd.Type {
	types := make([]pytd.Type, 0, len(elems))

	for _, elem := range elems {
		if elem.Type() == pysyntax.TypeListSplatExpr {
			inner := pysyntax.Children(elem)
			if len(inner) == 1 {
				types = append(types, elemType(a.eval(inner[0], sc, fr)))
			}

			continue
		}

		types = append(types, a.eval(elem, sc, fr))
	}

	if joined := pytd.Join(types...); joined != nil {
		return joined
	}

	return pytd.AnyType
}

func (a *analyzer) tupleType(elems []sitter.Node, sc *scope, fr *frame) pytd.Type {
	params := make([]pytd.Type, 0, len(elems))
	variadic := len(elems) == 0

	for _, elem := range elems {
		if elem.Type() == pysyntax.TypeListSplatExpr {
			variadic = true

			continue
		}

		params = append(params, a.eval(elem, sc, fr))
	}

	if variadic {
		return pytd.GenericType(typeTuple, pytd.AnyType, ellipsisType)
	}

	return pytd.GenericType(typeTuple, params...)
}

func (a *analyzer) dictType(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	var keys, values []pytd.Type

	for _, child := range pysyntax.Children(node) {
		if child.Type() != pysyntax.TypePair {
			a.eval(child, sc, fr)
			keys = append(keys, pytd.AnyType)
			values = append(values, pytd.AnyType)

			continue
		}

		key, _ := pysyntax.Field(child, "key")
		value, _ := pysyntax.Field(child, "value")
		keys = append(keys, a.eval(key, sc, fr))
		values = append(values, a.eval(value, sc, fr))
	}

	return pytd.GenericType(typeDict, orAny(pytd.Join(keys...)), orAny(pytd.Join(values...)))
}

func orAny(t pytd.Type) pytd.Type {
	if t == nil {
		return pytd.AnyType
	}

	return t
}

// comprehension binds the loop targets in a scope of their own.
func (a *analyzer) comprehension(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	inner := newScope(sc)

	for _, clause := range pysyntax.Children(node) {
		switch clause.Type() {
		case pysyntax.TypeForInClause:
			left, _ := pysyntax.Field(clause, "left")
			right, _ := pysyntax.Field(clause, "right")
			a.bindTarget(left, elemType(a.eval(right, inner, fr)), inner, fr)
		case pysyntax.TypeIfClause:
			for _, cond := range pysyntax.Children(clause) {
				a.eval(cond, inner, fr)
			}
		}
	}

	body, _ := pysyntax.Field(node, "body")

	switch node.Type() {
	case pysyntax.TypeDictComp:
		key, _ := pysyntax.Field(body, "key")
		value, _ := pysyntax.Field(body, "value")

		return pytd.GenericType(typeDict, a.eval(key, inner, fr), a.eval(value, inner, fr))
	case pysyntax.TypeSetComp:
		return pytd.GenericType(typeSet, a.eval(body, inner, fr))
	case pysyntax.TypeGenerator:
		return pytd.GenericType(typeIterator, a.eval(body, inner, fr))
	default:
		return pytd.GenericType(typeList, a.eval(body, inner, fr))
	}
}

// elemType is the type produced by iterating over a value of type t.
func elemType(t pytd.Type) pytd.Type {
	switch v := t.(type) {
	case pytd.Generic:
		if len(v.Params) == 0 {
			return pytd.AnyType
		}

		if v.Base == typeTuple {
			return tupleElem(v)
		}

		return v.Params[0]
	case pytd.Named:
		switch v.Name {
		case typeStr:
			return strType
		case typeBytes, typeRange:
			return intType
		}
	}

	return pytd.AnyType
}

func tupleElem(t pytd.Generic) pytd.Type {
	members := make([]pytd.Type, 0, len(t.Params))

	for _, p := range t.Params {
		if !pytd.Equal(p, ellipsisType) {
			members = append(members, p)
		}
	}

	return orAny(pytd.Join(members...))
}

func (a *analyzer) subscript(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	valueNode, _ := pysyntax.Field(node, "value")
	value := a.eval(valueNode, sc, fr)

	children := pysyntax.Children(node)

	var index sitter.Node
	if len(children) > 1 {
		index = children[1]
		for _, child := range children[1:] {
			if child.Type() != pysyntax.TypeSlice {
				a.eval(child, sc, fr)
			}
		}
	}

	isSlice := len(children) > 1 && index.Type() == pysyntax.TypeSlice

	switch v := value.(type) {
	case pytd.Generic:
		switch v.Base {
		case typeList, "Sequence":
			if isSlice {
				return value
			}

			return elemType(v)
		case typeDict, "Mapping":
			if len(v.Params) == 2 {
				return v.Params[1]
			}
		case typeTuple:
			if isSlice {
				return pytd.GenericType(typeTuple, pytd.AnyType, ellipsisType)
			}

			if len(children) > 1 && index.Type() == pysyntax.TypeInteger && !hasEllipsis(v) {
				pos, err := strconv.Atoi(a.tree.Text(index))
				if err == nil && pos >= 0 && pos < len(v.Params) {
					return v.Params[pos]
				}
			}

			return tupleElem(v)
		}
	case pytd.Named:
		switch v.Name {
		case typeStr:
			return strType
		case typeBytes:
			if isSlice {
				return bytesType
			}

			return intType
		}

		if local := a.localClass(v); local != nil {
			if m, ok := local.method("__getitem__"); ok {
				return a.callLocal(m, v, callArgs{positional: []pytd.Type{pytd.AnyType}}, pysyntax.Line(node), fr)
			}
		}
	}

	return pytd.AnyType
}

func hasEllipsis(t pytd.Generic) bool {
	for _, p := range t.Params {
		if pytd.Equal(p, ellipsisType) {
			return true
		}
	}

	return false
}

func (a *analyzer) unary(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	op, _ := pysyntax.Field(node, "operator")
	arg, _ := pysyntax.Field(node, "argument")
	t := a.eval(arg, sc, fr)

	rank, numeric := numericRank[baseName(t)]
	if !numeric {
		return pytd.AnyType
	}

	if op.Type() == "~" {
		return intType
	}

	return rankType[rank]
}

func isAnyLike(t pytd.Type) bool {
	if t == nil {
		return true
	}

	if _, union := t.(pytd.Union); union {
		return true
	}

	name := baseName(t)

	return name == pytd.NameAny || name == pytd.NameUnknown
}

func isText(name string) bool {
	return name == typeStr || name == typeBytes
}

func isSequence(name string) bool {
	return isText(name) || name == typeList || name == typeTuple
}

// binary infers a binary operation. Mixed numeric operands only promote the
// narrower left side when reverse operators are enabled.
func (a *analyzer) binary(node sitter.Node, op string, left, right pytd.Type, fr *frame) pytd.Type {
	if isAnyLike(left) || isAnyLike(right) {
		return pytd.AnyType
	}

	ln, rn := baseName(left), baseName(right)
	lRank, lNumeric := numericRank[ln]
	rRank, rNumeric := numericRank[rn]

	switch {
	case lNumeric && rNumeric:
		return a.numericBinary(op, lRank, rRank)
	case op == "%" && isText(ln):
		return left
	case op == "*" && isSequence(ln) && rNumeric && rRank == 1:
		return left
	case op == "*" && isSequence(rn) && lNumeric && lRank == 1:
		return right
	case op == "+" && pytd.Equal(left, right) && isSequence(ln):
		return left
	case op == "+" && ln == rn && (ln == typeList || ln == typeTuple):
		return pytd.GenericType(ln, orAny(pytd.Join(elemType(left), elemType(right))))
	case (isText(ln) && (rNumeric || isText(rn))) || (lNumeric && isText(rn)):
		a.report(pysyntax.Line(node), diag.KindUnsupportedOperand,
			"unsupported operand type(s) for %s: %q and %q", op, pytd.PrintType(left), pytd.PrintType(right))

		return pytd.AnyType
	}

	method, ok := operatorMethods[op]
	if !ok {
		return pytd.AnyType
	}

	if local := a.localClass(left); local != nil {
		if m, found := local.method(method); found {
			return a.callLocal(m, left, callArgs{positional: []pytd.Type{right}}, pysyntax.Line(node), fr)
		}
	}

	return pytd.AnyType
}

func (a *analyzer) numericBinary(op string, lRank, rRank int) pytd.Type {
	if lRank < rRank && !a.opts.ReverseOperators {
		return pytd.AnyType
	}

	rank := max(lRank, rRank)
	if op == "/" && rank < numericRank[typeFloat] {
		rank = numericRank[typeFloat]
	}

	return rankType[rank]
}

func (a *analyzer) yield(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	children := pysyntax.Children(node)

	t := pytd.NoneType
	if len(children) > 0 {
		t = a.eval(children[0], sc, fr)
		if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(a.tree.Text(node), "yield")), "from") {
			t = elemType(t)
		}
	}

	if fr != nil {
		fr.yields = append(fr.yields, t)
	}

	return pytd.AnyType
}
