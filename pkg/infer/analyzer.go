package infer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

const (
	// memoSize bounds the call-result and standalone-signature caches.
	memoSize   = 4096
	moduleDecl = "<module>"
)

// analyzer holds the state of one unit's analysis.
type analyzer struct {
	ctx      context.Context
	opts     Options
	tree     *pysyntax.Tree
	log      *diag.Log
	logger   *slog.Logger
	filename string
	module   string
	builtins *pytd.Module
	imports  *importer

	globals     map[string]symbol
	bound       map[string]bool
	functions   []*funcDef
	classes     []*classDef
	classByName map[string]*classDef
	constOrder  []string
	imported    map[string]bool
	lines       map[string]int

	active    map[*funcDef]int
	recording bool
	reported  map[string]bool
	calls     *lru.Cache[callKey, pytd.Type]
	unknowns  *lru.Cache[*funcDef, pytd.Signature]
	edges     map[string]map[string]bool
}

func newAnalyzer(ctx context.Context, req Request, tree *pysyntax.Tree, builtins *pytd.Module, logger *slog.Logger) (*analyzer, error) {
	a := &analyzer{
		ctx:         ctx,
		opts:        req.Options,
		tree:        tree,
		log:         req.Log,
		logger:      logger,
		filename:    req.Filename,
		module:      importmap.ModuleName(req.Filename, req.Options.SearchPath),
		builtins:    builtins,
		imports:     newImporter(req),
		globals:     make(map[string]symbol),
		bound:       make(map[string]bool),
		imported:    make(map[string]bool),
		classByName: make(map[string]*classDef),
		lines:       make(map[string]int),
		active:      make(map[*funcDef]int),
		reported:    make(map[string]bool),
		edges:       make(map[string]map[string]bool),
	}

	if req.Options.SkipRepeatCalls {
		calls, err := lru.New[callKey, pytd.Type](memoSize)
		if err != nil {
			return nil, fmt.Errorf("call cache: %w", err)
		}

		a.calls = calls
	}

	if req.Options.CacheUnknowns {
		unknowns, err := lru.New[*funcDef, pytd.Signature](memoSize)
		if err != nil {
			return nil, fmt.Errorf("unknowns cache: %w", err)
		}

		a.unknowns = unknowns
	}

	return a, nil
}

// report records a diagnostic once per line, kind and message.
func (a *analyzer) report(line int, kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	key := fmt.Sprintf("%d|%s|%s", line, kind, msg)

	if a.reported[key] {
		return
	}

	a.reported[key] = true
	a.log.Add(diag.Diagnostic{Filename: a.filename, Line: line, Kind: kind, Message: msg})
}

// run analyzes module-level code, recording call sites, and returns the
// unit's stub.
func (a *analyzer) run() (*pytd.Module, error) {
	root := a.tree.Root()

	a.collectBindings(root)

	a.recording = true
	a.execBlock(root, nil, nil)
	a.recording = false

	if err := a.ctx.Err(); err != nil {
		return nil, err
	}

	m := a.build()

	if err := a.ctx.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// collectBindings records every name bound by module-level code so that uses
// before the binding statement are not reported.
func (a *analyzer) collectBindings(node sitter.Node) {
	for _, child := range pysyntax.Children(node) {
		switch child.Type() {
		case pysyntax.TypeFunction, pysyntax.TypeClass:
			if name, ok := pysyntax.Field(child, "name"); ok {
				a.bound[a.tree.Text(name)] = true
			}

			continue
		case pysyntax.TypeAssignment, pysyntax.TypeAugAssignment, pysyntax.TypeFor, pysyntax.TypeForInClause:
			if left, ok := pysyntax.Field(child, "left"); ok {
				a.collectTargets(left)
			}
		case pysyntax.TypeNamedExpr:
			if name, ok := pysyntax.Field(child, "name"); ok {
				a.collectTargets(name)
			}
		case pysyntax.TypeAsPatternTarget, pysyntax.TypeGlobal:
			a.collectTargets(child)
		case pysyntax.TypeExceptClause:
			for _, inner := range pysyntax.Children(child) {
				if inner.Type() == pysyntax.TypeIdentifier {
					a.bound[a.tree.Text(inner)] = true
				}
			}
		case pysyntax.TypeImport, pysyntax.TypeImportFrom:
			for _, name := range a.importedNames(child) {
				a.bound[name] = true
			}

			continue
		}

		a.collectBindings(child)
	}
}

func (a *analyzer) collectTargets(node sitter.Node) {
	if node.Type() == pysyntax.TypeIdentifier {
		a.bound[a.tree.Text(node)] = true

		return
	}

	if node.Type() == pysyntax.TypeAttribute || node.Type() == pysyntax.TypeSubscript {
		return
	}

	for _, child := range pysyntax.Children(node) {
		a.collectTargets(child)
	}
}

// importedNames lists the names an import statement binds.
func (a *analyzer) importedNames(stmt sitter.Node) []string {
	children := pysyntax.Children(stmt)
	if stmt.Type() == pysyntax.TypeImportFrom && len(children) > 0 {
		children = children[1:]
	}

	names := make([]string, 0, len(children))

	for _, child := range children {
		switch child.Type() {
		case pysyntax.TypeAliasedImport:
			alias, _ := pysyntax.Field(child, "alias")
			names = append(names, a.tree.Text(alias))
		case pysyntax.TypeDottedName:
			text := a.tree.Text(child)
			if stmt.Type() == pysyntax.TypeImport {
				text, _, _ = strings.Cut(text, ".")
			}

			names = append(names, text)
		}
	}

	return names
}

func (a *analyzer) execBlock(block sitter.Node, sc *scope, fr *frame) {
	for _, stmt := range pysyntax.Children(block) {
		if a.ctx.Err() != nil {
			return
		}

		a.exec(stmt, sc, fr)
	}
}

func (a *analyzer) exec(stmt sitter.Node, sc *scope, fr *frame) {
	switch stmt.Type() {
	case pysyntax.TypeImport:
		a.importStmt(stmt, sc)
	case pysyntax.TypeImportFrom:
		a.importFrom(stmt, sc)
	case pysyntax.TypeFunction, pysyntax.TypeDecorated, pysyntax.TypeClass:
		a.define(stmt, sc)
	case pysyntax.TypeExpressionStmt:
		for _, expr := range pysyntax.Children(stmt) {
			a.exprStmt(expr, sc, fr)
		}
	case pysyntax.TypeReturn:
		a.returnStmt(stmt, sc, fr)
	case pysyntax.TypeIf:
		a.ifStmt(stmt, sc, fr)
	case pysyntax.TypeFor:
		left, _ := pysyntax.Field(stmt, "left")
		right, _ := pysyntax.Field(stmt, "right")
		a.bindTarget(left, elemType(a.eval(right, sc, fr)), sc, fr)
		a.execFields(stmt, sc, fr, "body", "alternative")
	case pysyntax.TypeWhile:
		if cond, ok := pysyntax.Field(stmt, "condition"); ok {
			a.eval(cond, sc, fr)
		}

		a.execFields(stmt, sc, fr, "body", "alternative")
	case pysyntax.TypeTry:
		a.tryStmt(stmt, sc, fr)
	case pysyntax.TypeWith:
		a.withStmt(stmt, sc, fr)
	case pysyntax.TypeElseClause, pysyntax.TypeFinallyClause:
		if _, ok := pysyntax.Field(stmt, "body"); ok {
			a.execFields(stmt, sc, fr, "body")

			return
		}

		for _, child := range pysyntax.Children(stmt) {
			if child.Type() == pysyntax.TypeBlock {
				a.execBlock(child, sc, fr)
			}
		}
	}
}

func (a *analyzer) execFields(stmt sitter.Node, sc *scope, fr *frame, fields ...string) {
	for _, field := range fields {
		node, ok := pysyntax.Field(stmt, field)
		if !ok {
			continue
		}

		if node.Type() == pysyntax.TypeBlock {
			a.execBlock(node, sc, fr)
		} else {
			a.exec(node, sc, fr)
		}
	}
}

func (a *analyzer) exprStmt(expr sitter.Node, sc *scope, fr *frame) {
	switch expr.Type() {
	case pysyntax.TypeAssignment:
		a.assign(expr, sc, fr)
	case pysyntax.TypeAugAssignment:
		left, _ := pysyntax.Field(expr, "left")
		right, _ := pysyntax.Field(expr, "right")
		op, _ := pysyntax.Field(expr, "operator")

		current := a.eval(left, sc, fr)
		result := a.binary(expr, strings.TrimSuffix(op.Type(), "="), current, a.eval(right, sc, fr), fr)
		a.bindTarget(left, result, sc, fr)
	default:
		a.eval(expr, sc, fr)
	}
}

// assign handles plain, annotated and chained assignments.
func (a *analyzer) assign(expr sitter.Node, sc *scope, fr *frame) pytd.Type {
	left, _ := pysyntax.Field(expr, "left")

	var t pytd.Type

	if right, ok := pysyntax.Field(expr, "right"); ok {
		if right.Type() == pysyntax.TypeAssignment {
			t = a.assign(right, sc, fr)
		} else {
			t = a.eval(right, sc, fr)
		}
	}

	if annotation, ok := pysyntax.Field(expr, "type"); ok {
		t = a.annotation(annotation)
	}

	if t == nil {
		return pytd.AnyType
	}

	if sc == nil && left.Type() == pysyntax.TypeIdentifier {
		if _, seen := a.lines[a.tree.Text(left)]; !seen {
			a.lines[a.tree.Text(left)] = pysyntax.Line(left)
		}
	}

	a.bindTarget(left, t, sc, fr)

	return t
}

// bindTarget binds every name in an assignment target. Attribute targets on
// the receiver of a method become instance attributes.
func (a *analyzer) bindTarget(target sitter.Node, t pytd.Type, sc *scope, fr *frame) {
	switch target.Type() {
	case pysyntax.TypeIdentifier:
		a.bindName(a.tree.Text(target), valueSym(t), sc)
	case pysyntax.TypePatternList, pysyntax.TypeTuplePattern, pysyntax.TypeListPattern,
		pysyntax.TypeTuple, pysyntax.TypeList, pysyntax.TypeExpressionList, pysyntax.TypeParenthesized:
		elems := pysyntax.Children(target)
		tuple, isTuple := t.(pytd.Generic)
		exact := isTuple && tuple.Base == typeTuple && len(tuple.Params) == len(elems) && !hasEllipsis(tuple)

		for i, elem := range elems {
			switch {
			case exact:
				a.bindTarget(elem, tuple.Params[i], sc, fr)
			case elem.Type() == pysyntax.TypeListSplat || elem.Type() == pysyntax.TypeListSplatExpr:
				a.bindTarget(elem, pytd.GenericType(typeList, elemType(t)), sc, fr)
			default:
				a.bindTarget(elem, elemType(t), sc, fr)
			}
		}
	case pysyntax.TypeListSplat, pysyntax.TypeListSplatExpr:
		for _, inner := range pysyntax.Children(target) {
			a.bindTarget(inner, t, sc, fr)
		}
	case pysyntax.TypeAttribute:
		object, _ := pysyntax.Field(target, "object")
		attr, _ := pysyntax.Field(target, "attribute")

		if sc != nil && sc.self != nil && fr != nil && fr.fn != nil && len(fr.fn.params) > 0 &&
			fr.fn.isMethod() && a.tree.Text(object) == fr.fn.params[0].name {
			sc.self.setAttr(a.tree.Text(attr), t)

			return
		}

		a.eval(object, sc, fr)
	case pysyntax.TypeSubscript:
		object, _ := pysyntax.Field(target, "value")
		a.eval(object, sc, fr)
	}
}

// bindName binds name in the function scope, or globally for module-level
// code.
func (a *analyzer) bindName(name string, sym symbol, sc *scope) {
	if sc == nil {
		delete(a.imported, name)
	}

	if sc != nil {
		if sym.kind == symValue {
			sc.bind(name, sym.typ)
		} else {
			sc.bind(name, a.symType(sym))
		}

		return
	}

	if sym.kind != symValue {
		a.globals[name] = sym

		return
	}

	prev, ok := a.globals[name]
	if ok && prev.kind == symValue {
		a.globals[name] = valueSym(pytd.Join(prev.typ, sym.typ))

		return
	}

	if !ok || prev.kind != symValue {
		a.constOrder = append(a.constOrder, name)
	}

	a.globals[name] = sym
}

func (a *analyzer) returnStmt(stmt sitter.Node, sc *scope, fr *frame) {
	children := pysyntax.Children(stmt)

	t := pytd.NoneType
	if len(children) > 0 {
		t = a.eval(children[0], sc, fr)
	}

	if fr != nil {
		fr.returns = append(fr.returns, t)
	}
}

func (a *analyzer) ifStmt(stmt sitter.Node, sc *scope, fr *frame) {
	if cond, ok := pysyntax.Field(stmt, "condition"); ok {
		a.eval(cond, sc, fr)
	}

	a.execFields(stmt, sc, fr, "consequence")

	for _, clause := range pysyntax.Children(stmt) {
		switch clause.Type() {
		case pysyntax.TypeElifClause:
			if cond, ok := pysyntax.Field(clause, "condition"); ok {
				a.eval(cond, sc, fr)
			}

			a.execFields(clause, sc, fr, "consequence")
		case pysyntax.TypeElseClause:
			a.execFields(clause, sc, fr, "body")
		}
	}
}

func (a *analyzer) tryStmt(stmt sitter.Node, sc *scope, fr *frame) {
	a.execFields(stmt, sc, fr, "body")

	for _, clause := range pysyntax.Children(stmt) {
		switch clause.Type() {
		case pysyntax.TypeExceptClause:
			a.exceptClause(clause, sc, fr)
		case pysyntax.TypeElseClause, pysyntax.TypeFinallyClause:
			a.exec(clause, sc, fr)
		}
	}
}

// exceptClause binds "except E as name" to an instance of E.
func (a *analyzer) exceptClause(clause sitter.Node, sc *scope, fr *frame) {
	var caught pytd.Type

	for _, child := range pysyntax.Children(clause) {
		switch child.Type() {
		case pysyntax.TypeBlock:
			a.execBlock(child, sc, fr)
		case pysyntax.TypeAsPattern:
			inner := pysyntax.Children(child)
			if len(inner) == 2 {
				a.bindTarget(firstIdentifier(inner[1]), a.exceptionType(inner[0], sc, fr), sc, fr)
			}
		case pysyntax.TypeIdentifier:
			if caught == nil {
				caught = a.exceptionType(child, sc, fr)
			} else {
				a.bindTarget(child, caught, sc, fr)
			}
		default:
			a.eval(child, sc, fr)
		}
	}
}

func firstIdentifier(node sitter.Node) sitter.Node {
	if node.Type() == pysyntax.TypeIdentifier {
		return node
	}

	for _, child := range pysyntax.Children(node) {
		if found := firstIdentifier(child); !found.IsNull() {
			return found
		}
	}

	return sitter.Node{}
}

func (a *analyzer) exceptionType(node sitter.Node, sc *scope, fr *frame) pytd.Type {
	sym, ok := a.evalSym(node, sc, fr)
	if !ok {
		return pytd.AnyType
	}

	switch sym.kind {
	case symClass:
		return sym.class.instanceType()
	case symStubClass:
		return pytd.NamedType(sym.stubClass.qualified)
	default:
		return pytd.AnyType
	}
}

func (a *analyzer) withStmt(stmt sitter.Node, sc *scope, fr *frame) {
	for _, child := range pysyntax.Children(stmt) {
		switch child.Type() {
		case pysyntax.TypeWithClause:
			for _, item := range pysyntax.Children(child) {
				a.withItem(item, sc, fr)
			}
		case pysyntax.TypeBlock:
			a.execBlock(child, sc, fr)
		}
	}
}

func (a *analyzer) withItem(item sitter.Node, sc *scope, fr *frame) {
	value, ok := pysyntax.Field(item, "value")
	if !ok {
		return
	}

	if value.Type() != pysyntax.TypeAsPattern {
		a.eval(value, sc, fr)

		return
	}

	inner := pysyntax.Children(value)
	if len(inner) != 2 {
		return
	}

	a.eval(inner[0], sc, fr)

	if target := firstIdentifier(inner[1]); !target.IsNull() {
		a.bindTarget(target, pytd.AnyType, sc, fr)
	}
}

// annotation converts a source annotation into a stub type, rewriting typing
// aliases and imported class names.
func (a *analyzer) annotation(node sitter.Node) pytd.Type {
	t, err := pytd.ParseAnnotation(a.tree, node)
	if err != nil {
		a.logger.Debug("unsupported annotation", "file", a.filename, "line", pysyntax.Line(node), "error", err)

		return pytd.AnyType
	}

	return a.resolveAnnotation(t)
}

func (a *analyzer) resolveAnnotation(t pytd.Type) pytd.Type {
	switch v := t.(type) {
	case pytd.Named:
		return pytd.NamedType(a.annotationName(v.Name))
	case pytd.Generic:
		params := make([]pytd.Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = a.resolveAnnotation(p)
		}

		return pytd.GenericType(a.annotationName(v.Base), params...)
	case pytd.Union:
		members := make([]pytd.Type, len(v.Types))
		for i, m := range v.Types {
			members[i] = a.resolveAnnotation(m)
		}

		return pytd.Union{Types: members}
	default:
		return t
	}
}

func (a *analyzer) annotationName(name string) string {
	if sym, ok := a.globals[name]; ok && sym.kind == symStubClass {
		return sym.stubClass.qualified
	}

	return normalizeAnnotationName(name)
}

// currentModule is the dotted name relative imports resolve against.
func (a *analyzer) currentModule() string {
	if strings.HasPrefix(filepath.Base(a.filename), initStub+".") {
		return a.module + "." + initStub
	}

	return a.module
}

func (a *analyzer) importStmt(stmt sitter.Node, sc *scope) {
	line := pysyntax.Line(stmt)

	for _, child := range pysyntax.Children(stmt) {
		switch child.Type() {
		case pysyntax.TypeDottedName:
			module := a.tree.Text(child)

			if _, ok := a.imports.resolve(module, line); !ok {
				a.bindImport(rootName(module), valueSym(pytd.AnyType), sc)

				continue
			}

			root := rootName(module)

			ref, ok := a.imports.tryLoad(root)
			if !ok {
				ref = &moduleRef{name: root}
			}

			a.bindImport(root, symbol{kind: symModule, module: ref}, sc)
		case pysyntax.TypeAliasedImport:
			name, _ := pysyntax.Field(child, "name")
			alias, _ := pysyntax.Field(child, "alias")

			ref, ok := a.imports.resolve(a.tree.Text(name), line)
			if !ok {
				a.bindImport(a.tree.Text(alias), valueSym(pytd.AnyType), sc)

				continue
			}

			a.bindImport(a.tree.Text(alias), symbol{kind: symModule, module: ref}, sc)
		}
	}
}

// bindImport binds a name introduced by an import statement. Imported names
// are not constants of the importing module.
func (a *analyzer) bindImport(name string, sym symbol, sc *scope) {
	a.bindName(name, sym, sc)

	if sc == nil {
		a.imported[name] = true
	}
}

func rootName(module string) string {
	root, _, _ := strings.Cut(module, ".")

	return root
}

func (a *analyzer) importFrom(stmt sitter.Node, sc *scope) {
	children := pysyntax.Children(stmt)
	if len(children) == 0 {
		return
	}

	line := pysyntax.Line(stmt)

	module, ok := a.fromModule(children[0])
	if !ok {
		a.report(line, diag.KindImportError, "relative import %q beyond top-level package", a.tree.Text(children[0]))
		a.bindAllAny(stmt, sc)

		return
	}

	ref, resolved := a.imports.resolve(module, line)
	if !resolved {
		a.bindAllAny(stmt, sc)

		return
	}

	for _, child := range children[1:] {
		switch child.Type() {
		case pysyntax.TypeWildcardImport:
			a.bindWildcard(ref, sc)
		case pysyntax.TypeDottedName:
			name := a.tree.Text(child)
			a.bindImport(name, a.importMember(ref, name, line), sc)
		case pysyntax.TypeAliasedImport:
			name, _ := pysyntax.Field(child, "name")
			alias, _ := pysyntax.Field(child, "alias")
			a.bindImport(a.tree.Text(alias), a.importMember(ref, a.tree.Text(name), line), sc)
		}
	}
}

func (a *analyzer) fromModule(node sitter.Node) (string, bool) {
	text := a.tree.Text(node)
	if node.Type() != pysyntax.TypeRelativeImport {
		return text, true
	}

	name := strings.TrimLeft(text, ".")

	return absolute(a.currentModule(), len(text)-len(name), name)
}

func (a *analyzer) importMember(ref *moduleRef, name string, line int) symbol {
	if typingModules[ref.name] {
		return symbol{kind: symTyping}
	}

	if ref.stub == nil {
		return valueSym(pytd.AnyType)
	}

	if sym, ok := ref.member(name); ok {
		return sym
	}

	if sub, ok := a.imports.tryLoad(ref.name + "." + name); ok {
		return symbol{kind: symModule, module: sub}
	}

	a.report(line, diag.KindImportError, "Can't find %s.%s", ref.name, name)

	return valueSym(pytd.AnyType)
}

func (a *analyzer) bindWildcard(ref *moduleRef, sc *scope) {
	if ref.stub == nil {
		return
	}

	var names []string

	for _, c := range ref.stub.Constants {
		names = append(names, c.Name)
	}

	for _, c := range ref.stub.Classes {
		names = append(names, c.Name)
	}

	for _, fn := range ref.stub.Functions {
		names = append(names, fn.Name)
	}

	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}

		if sym, ok := ref.member(name); ok {
			a.bindImport(name, sym, sc)
		}
	}
}

func (a *analyzer) bindAllAny(stmt sitter.Node, sc *scope) {
	for _, name := range a.importedNames(stmt) {
		a.bindImport(name, valueSym(pytd.AnyType), sc)
	}
}

// define binds a function or class definition. Inside function bodies the
// definition is opaque.
func (a *analyzer) define(stmt sitter.Node, sc *scope) {
	def := stmt
	kind := pytd.KindPlain

	if stmt.Type() == pysyntax.TypeDecorated {
		inner, ok := pysyntax.Field(stmt, "definition")
		if !ok {
			return
		}

		def = inner
		kind = a.decoratorKind(stmt)
	}

	name, _ := pysyntax.Field(def, "name")

	if sc != nil {
		if def.Type() == pysyntax.TypeClass {
			sc.bind(a.tree.Text(name), pytd.GenericType(typeType, pytd.AnyType))
		} else {
			sc.bind(a.tree.Text(name), callableType)
		}

		return
	}

	if def.Type() == pysyntax.TypeClass {
		class := a.defineClass(def)
		a.bindName(class.name, symbol{kind: symClass, class: class}, nil)

		return
	}

	fn := a.newFunc(def, kind, nil)
	a.functions = append(a.functions, fn)
	a.lines[fn.name] = fn.line
	a.bindName(fn.name, symbol{kind: symFunc, fn: fn}, nil)
}

func (a *analyzer) decoratorKind(stmt sitter.Node) pytd.FuncKind {
	kind := pytd.KindPlain

	for _, child := range pysyntax.Children(stmt) {
		if child.Type() != pysyntax.TypeDecorator {
			continue
		}

		text := strings.TrimSpace(strings.TrimPrefix(a.tree.Text(child), "@"))

		switch text {
		case "staticmethod":
			kind = pytd.KindStaticMethod
		case "classmethod":
			kind = pytd.KindClassMethod
		case "property":
			kind = pytd.KindProperty
		}
	}

	return kind
}

func (a *analyzer) newFunc(def sitter.Node, kind pytd.FuncKind, owner *classDef) *funcDef {
	name, _ := pysyntax.Field(def, "name")

	fn := &funcDef{
		name:  a.tree.Text(name),
		line:  pysyntax.Line(def),
		node:  def,
		kind:  kind,
		owner: owner,
	}

	if params, ok := pysyntax.Field(def, "parameters"); ok {
		for _, param := range pysyntax.Children(params) {
			if p, ok := a.paramDef(param); ok {
				fn.params = append(fn.params, p)
			}
		}
	}

	if ret, ok := pysyntax.Field(def, "return_type"); ok {
		fn.returns = a.annotation(ret)
	}

	return fn
}

func (a *analyzer) paramDef(node sitter.Node) (paramDef, bool) {
	switch node.Type() {
	case pysyntax.TypeIdentifier:
		return paramDef{name: a.tree.Text(node)}, true
	case pysyntax.TypeListSplat, pysyntax.TypeDictSplat:
		return a.splatParam(node), true
	case pysyntax.TypeTypedParam:
		children := pysyntax.Children(node)
		if len(children) == 0 {
			return paramDef{}, false
		}

		p := paramDef{name: a.tree.Text(children[0])}
		if children[0].Type() == pysyntax.TypeListSplat || children[0].Type() == pysyntax.TypeDictSplat {
			p = a.splatParam(children[0])
		}

		if annotation, ok := pysyntax.Field(node, "type"); ok {
			p.annotation = a.annotation(annotation)
		}

		return p, true
	case pysyntax.TypeDefaultParam, pysyntax.TypeTypedDefault:
		name, _ := pysyntax.Field(node, "name")
		value, _ := pysyntax.Field(node, "value")
		p := paramDef{name: a.tree.Text(name), value: value, hasDefault: true}

		if annotation, ok := pysyntax.Field(node, "type"); ok {
			p.annotation = a.annotation(annotation)
		}

		return p, true
	default:
		return paramDef{}, false
	}
}

func (a *analyzer) splatParam(node sitter.Node) paramDef {
	kind := pytd.ParamVarargs
	if node.Type() == pysyntax.TypeDictSplat {
		kind = pytd.ParamKwargs
	}

	name := strings.TrimLeft(a.tree.Text(node), "*")
	if children := pysyntax.Children(node); len(children) > 0 {
		name = a.tree.Text(children[0])
	}

	return paramDef{name: name, kind: kind}
}

// defineClass records a class: its bases, class-level attributes and
// methods. Method bodies are analyzed when the stub is built.
func (a *analyzer) defineClass(def sitter.Node) *classDef {
	name, _ := pysyntax.Field(def, "name")
	class := &classDef{name: a.tree.Text(name), line: pysyntax.Line(def), node: def}

	a.classes = append(a.classes, class)
	a.classByName[class.name] = class
	a.lines[class.name] = class.line

	if supers, ok := pysyntax.Field(def, "superclasses"); ok {
		for _, arg := range pysyntax.Children(supers) {
			if arg.Type() == pysyntax.TypeKeywordArgument {
				continue
			}

			class.bases = append(class.bases, a.baseType(arg, class))
		}
	}

	body, ok := pysyntax.Field(def, "body")
	if !ok {
		return class
	}

	classScope := newScope(nil)

	for _, stmt := range pysyntax.Children(body) {
		switch stmt.Type() {
		case pysyntax.TypeFunction, pysyntax.TypeDecorated:
			inner := stmt
			kind := pytd.KindPlain

			if stmt.Type() == pysyntax.TypeDecorated {
				inner, _ = pysyntax.Field(stmt, "definition")
				kind = a.decoratorKind(stmt)
			}

			if inner.Type() != pysyntax.TypeFunction {
				continue
			}

			class.methods = append(class.methods, a.newFunc(inner, kind, class))
		case pysyntax.TypeExpressionStmt:
			for _, expr := range pysyntax.Children(stmt) {
				if expr.Type() != pysyntax.TypeAssignment {
					continue
				}

				left, _ := pysyntax.Field(expr, "left")
				t := a.assign(expr, classScope, nil)

				if left.Type() == pysyntax.TypeIdentifier {
					class.setAttr(a.tree.Text(left), t)
				}
			}
		}
	}

	return class
}

func (a *analyzer) baseType(arg sitter.Node, class *classDef) pytd.Type {
	sym, ok := a.evalSym(arg, nil, nil)
	if !ok {
		return pytd.AnyType
	}

	switch sym.kind {
	case symClass:
		class.baseDefs = append(class.baseDefs, sym.class)

		return sym.class.instanceType()
	case symStubClass:
		return pytd.NamedType(sym.stubClass.qualified)
	default:
		return pytd.AnyType
	}
}

// noteRef records a reference from the current declaration to a local
// function or class, for the typegraph.
func (a *analyzer) noteRef(fr *frame, sym symbol) {
	switch sym.kind {
	case symFunc:
		a.noteEdge(fr, sym.fn)
	case symClass:
		a.addEdge(fr.declName(), sym.class.name)
	}
}

func (a *analyzer) noteEdge(fr *frame, fn *funcDef) {
	target := fn.name
	if fn.owner != nil {
		target = fn.owner.name
	}

	a.addEdge(fr.declName(), target)
}

func (a *analyzer) addEdge(from, to string) {
	if from == to {
		return
	}

	if a.edges[from] == nil {
		a.edges[from] = make(map[string]bool)
	}

	a.edges[from][to] = true
}
