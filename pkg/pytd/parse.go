package pytd

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
)

// minMajorVersion is the oldest language major version stubs can target.
const minMajorVersion = 3

// Parse reads stub text written for the given language version. Import lines
// and comments are skipped; everything else must be a declaration Print can
// produce.
func Parse(src string, version config.Version) (*Module, error) {
	if version.Major < minMajorVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}

	tree, err := pysyntax.Parse(context.Background(), []byte(src))
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	defer tree.Close()

	root := tree.Root()

	if bad, found := pysyntax.FirstError(root); found {
		return nil, &ParseError{Line: pysyntax.Line(bad), Msg: "invalid syntax"}
	}

	p := &stubParser{tree: tree}
	m := &Module{}

	for _, stmt := range pysyntax.Children(root) {
		stmtErr := p.topLevel(m, stmt)
		if stmtErr != nil {
			return nil, stmtErr
		}
	}

	return m, nil
}

// CheckRoundTrip verifies that text, the output of Print, parses back into a
// model that prints identically.
func CheckRoundTrip(text string, version config.Version) error {
	m, err := Parse(text, version)
	if err != nil {
		return &SelfCheckError{Err: err}
	}

	if again := Print(m); again != text {
		return &SelfCheckError{Err: fmt.Errorf("%w: %d bytes in, %d bytes out", ErrUnstableOutput, len(text), len(again))}
	}

	return nil
}

type stubParser struct {
	tree *pysyntax.Tree
}

func (p *stubParser) errorf(n sitter.Node, format string, args ...any) error {
	return &ParseError{Line: pysyntax.Line(n), Msg: fmt.Sprintf(format, args...)}
}

func (p *stubParser) topLevel(m *Module, stmt sitter.Node) error {
	switch stmt.Type() {
	case pysyntax.TypeImport, pysyntax.TypeImportFrom, pysyntax.TypeFutureImport:
		return nil
	case pysyntax.TypeExpressionStmt:
		constant, skip, err := p.constant(stmt)
		if err != nil || skip {
			return err
		}

		m.Constants = append(m.Constants, constant)

		return nil
	case pysyntax.TypeClass:
		class, err := p.class(stmt)
		if err != nil {
			return err
		}

		m.Classes = append(m.Classes, class)

		return nil
	case pysyntax.TypeFunction, pysyntax.TypeDecorated:
		return p.addFunction(&m.Functions, &m.Classes, stmt)
	default:
		return p.errorf(stmt, "unsupported statement %s", stmt.Type())
	}
}

// constant reads "name: T" or "name: T = ...". Bare ellipses and docstrings
// are reported as skip.
func (p *stubParser) constant(stmt sitter.Node) (Constant, bool, error) {
	children := pysyntax.Children(stmt)
	if len(children) != 1 {
		return Constant{}, false, p.errorf(stmt, "unsupported expression statement")
	}

	expr := children[0]

	switch expr.Type() {
	case pysyntax.TypeEllipsis, pysyntax.TypeString, pysyntax.TypeConcatString:
		return Constant{}, true, nil
	case pysyntax.TypeAssignment:
	default:
		return Constant{}, false, p.errorf(expr, "unsupported expression %s", expr.Type())
	}

	left, _ := pysyntax.Field(expr, "left")
	if left.Type() != pysyntax.TypeIdentifier {
		return Constant{}, false, p.errorf(expr, "constant target must be a name")
	}

	annotation, ok := pysyntax.Field(expr, "type")
	if !ok {
		return Constant{}, false, p.errorf(expr, "constant %s has no annotation", p.tree.Text(left))
	}

	if right, hasValue := pysyntax.Field(expr, "right"); hasValue && right.Type() != pysyntax.TypeEllipsis {
		return Constant{}, false, p.errorf(right, "constant values must be '...'")
	}

	typ, err := p.typeExpr(annotation)
	if err != nil {
		return Constant{}, false, err
	}

	return Constant{Name: p.tree.Text(left), Type: typ}, false, nil
}

func (p *stubParser) class(node sitter.Node) (Class, error) {
	name, _ := pysyntax.Field(node, "name")
	class := Class{Name: p.tree.Text(name)}

	if supers, ok := pysyntax.Field(node, "superclasses"); ok {
		for _, arg := range pysyntax.Children(supers) {
			if arg.Type() == pysyntax.TypeKeywordArgument {
				return Class{}, p.errorf(arg, "unsupported class keyword argument")
			}

			base, err := p.typeExpr(arg)
			if err != nil {
				return Class{}, err
			}

			class.Bases = append(class.Bases, base)
		}
	}

	body, ok := pysyntax.Field(node, "body")
	if !ok {
		return class, nil
	}

	for _, stmt := range pysyntax.Children(body) {
		switch stmt.Type() {
		case pysyntax.TypePass:
		case pysyntax.TypeExpressionStmt:
			attr, skip, err := p.constant(stmt)
			if err != nil {
				return Class{}, err
			}

			if !skip {
				class.Constants = append(class.Constants, attr)
			}
		case pysyntax.TypeFunction, pysyntax.TypeDecorated:
			err := p.addFunction(&class.Methods, nil, stmt)
			if err != nil {
				return Class{}, err
			}
		default:
			return Class{}, p.errorf(stmt, "unsupported class member %s", stmt.Type())
		}
	}

	return class, nil
}

// addFunction parses a possibly decorated definition and merges it into list;
// definitions sharing a name become overloads of one function. Decorated
// classes go to classes when it is non-nil.
func (p *stubParser) addFunction(list *[]Function, classes *[]Class, node sitter.Node) error {
	kind := KindPlain
	def := node

	if node.Type() == pysyntax.TypeDecorated {
		inner, ok := pysyntax.Field(node, "definition")
		if !ok {
			return p.errorf(node, "decorator without definition")
		}

		if inner.Type() == pysyntax.TypeClass {
			if classes == nil {
				return p.errorf(inner, "nested classes are not supported")
			}

			class, err := p.class(inner)
			if err != nil {
				return err
			}

			*classes = append(*classes, class)

			return nil
		}

		for _, child := range pysyntax.Children(node) {
			if child.Type() != pysyntax.TypeDecorator {
				continue
			}

			decoratorKind, err := p.decorator(child)
			if err != nil {
				return err
			}

			if decoratorKind != KindPlain {
				kind = decoratorKind
			}
		}

		def = inner
	}

	if def.Type() != pysyntax.TypeFunction {
		return p.errorf(def, "unsupported definition %s", def.Type())
	}

	name, _ := pysyntax.Field(def, "name")

	sig, err := p.signature(def)
	if err != nil {
		return err
	}

	fnName := p.tree.Text(name)

	for i := range *list {
		if (*list)[i].Name == fnName {
			(*list)[i].Signatures = append((*list)[i].Signatures, sig)

			return nil
		}
	}

	*list = append(*list, Function{Name: fnName, Kind: kind, Signatures: []Signature{sig}})

	return nil
}

func (p *stubParser) decorator(node sitter.Node) (FuncKind, error) {
	children := pysyntax.Children(node)
	if len(children) != 1 {
		return KindPlain, p.errorf(node, "unsupported decorator")
	}

	text := p.tree.Text(children[0])
	if dot := strings.LastIndexByte(text, '.'); dot >= 0 {
		text = text[dot+1:]
	}

	switch text {
	case "overload":
		return KindPlain, nil
	case "staticmethod":
		return KindStaticMethod, nil
	case "classmethod":
		return KindClassMethod, nil
	case "property":
		return KindProperty, nil
	default:
		return KindPlain, p.errorf(node, "unsupported decorator @%s", text)
	}
}

func (p *stubParser) signature(def sitter.Node) (Signature, error) {
	var sig Signature

	if params, ok := pysyntax.Field(def, "parameters"); ok {
		for _, param := range pysyntax.Children(params) {
			parsed, skip, err := p.param(param)
			if err != nil {
				return Signature{}, err
			}

			if !skip {
				sig.Params = append(sig.Params, parsed)
			}
		}
	}

	sig.Return = AnyType

	if ret, ok := pysyntax.Field(def, "return_type"); ok {
		typ, err := p.typeExpr(ret)
		if err != nil {
			return Signature{}, err
		}

		sig.Return = typ
	}

	return sig, nil
}

func (p *stubParser) param(node sitter.Node) (Param, bool, error) {
	switch node.Type() {
	case pysyntax.TypeIdentifier:
		return Param{Name: p.tree.Text(node)}, false, nil
	case pysyntax.TypeListSplat, pysyntax.TypeDictSplat:
		return p.splat(node), false, nil
	case pysyntax.TypeKeywordSeparator, pysyntax.TypePositionalSep:
		return Param{}, true, nil
	case pysyntax.TypeTypedParam:
		children := pysyntax.Children(node)
		if len(children) == 0 {
			return Param{}, false, p.errorf(node, "empty parameter")
		}

		param := Param{Name: p.tree.Text(children[0])}
		if children[0].Type() == pysyntax.TypeListSplat || children[0].Type() == pysyntax.TypeDictSplat {
			param = p.splat(children[0])
		}

		if annotation, ok := pysyntax.Field(node, "type"); ok {
			typ, err := p.typeExpr(annotation)
			if err != nil {
				return Param{}, false, err
			}

			param.Type = typ
		}

		return param, false, nil
	case pysyntax.TypeDefaultParam, pysyntax.TypeTypedDefault:
		name, _ := pysyntax.Field(node, "name")
		param := Param{Name: p.tree.Text(name), Optional: true}

		if annotation, ok := pysyntax.Field(node, "type"); ok {
			typ, err := p.typeExpr(annotation)
			if err != nil {
				return Param{}, false, err
			}

			param.Type = typ
		}

		return param, false, nil
	default:
		return Param{}, false, p.errorf(node, "unsupported parameter %s", node.Type())
	}
}

func (p *stubParser) splat(node sitter.Node) Param {
	kind := ParamVarargs
	if node.Type() == pysyntax.TypeDictSplat {
		kind = ParamKwargs
	}

	name := strings.TrimLeft(p.tree.Text(node), "*")
	if children := pysyntax.Children(node); len(children) > 0 {
		name = p.tree.Text(children[0])
	}

	return Param{Name: name, Kind: kind}
}

func (p *stubParser) typeExpr(node sitter.Node) (Type, error) {
	switch node.Type() {
	case pysyntax.TypeType, pysyntax.TypeParenthesized:
		children := pysyntax.Children(node)
		if len(children) != 1 {
			return nil, p.errorf(node, "unsupported type expression")
		}

		return p.typeExpr(children[0])
	case pysyntax.TypeIdentifier, pysyntax.TypeAttribute, pysyntax.TypeMemberType, pysyntax.TypeEllipsis:
		return Named{Name: strings.Join(strings.Fields(p.tree.Text(node)), "")}, nil
	case pysyntax.TypeNone:
		return NoneType, nil
	case pysyntax.TypeString:
		return Named{Name: strings.Trim(p.tree.Text(node), `'"`)}, nil
	case pysyntax.TypeSubscript:
		value, _ := pysyntax.Field(node, "value")
		children := pysyntax.Children(node)

		params := make([]Type, 0, len(children))

		for _, child := range children[1:] {
			typ, err := p.typeExpr(child)
			if err != nil {
				return nil, err
			}

			params = append(params, typ)
		}

		return p.generic(node, p.tree.Text(value), params)
	case pysyntax.TypeGenericType:
		children := pysyntax.Children(node)
		if len(children) != 2 || children[1].Type() != pysyntax.TypeTypeParameter {
			return nil, p.errorf(node, "unsupported generic type")
		}

		var params []Type

		for _, child := range pysyntax.Children(children[1]) {
			typ, err := p.typeExpr(child)
			if err != nil {
				return nil, err
			}

			params = append(params, typ)
		}

		return p.generic(node, p.tree.Text(children[0]), params)
	case pysyntax.TypeUnionType, pysyntax.TypeBinaryOperator:
		var members []Type

		for _, child := range pysyntax.Children(node) {
			typ, err := p.typeExpr(child)
			if err != nil {
				return nil, err
			}

			if u, ok := typ.(Union); ok {
				members = append(members, u.Types...)
			} else {
				members = append(members, typ)
			}
		}

		return Union{Types: members}, nil
	default:
		return nil, p.errorf(node, "unsupported type expression %s", node.Type())
	}
}

func (p *stubParser) generic(node sitter.Node, base string, params []Type) (Type, error) {
	base = strings.Join(strings.Fields(base), "")

	switch base {
	case NameUnion, "typing." + NameUnion:
		return Union{Types: params}, nil
	case NameOptional, "typing." + NameOptional:
		if len(params) != 1 {
			return nil, p.errorf(node, "Optional takes exactly one parameter")
		}

		return Union{Types: []Type{params[0], NoneType}}, nil
	default:
		return Generic{Base: base, Params: params}, nil
	}
}

// ParseAnnotation converts a type annotation found in a parsed source into a
// stub type.
func ParseAnnotation(tree *pysyntax.Tree, node sitter.Node) (Type, error) {
	p := &stubParser{tree: tree}

	return p.typeExpr(node)
}
