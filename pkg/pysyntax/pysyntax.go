// Package pysyntax wraps the tree-sitter Python grammar shared by the stub
// parser and the inference engine.
package pysyntax

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

var (
	errNoRootNode = errors.New("pysyntax: no root node")
	errPoolType   = errors.New("pysyntax: unexpected parser pool entry")
)

// Node types the callers switch on.
const (
	TypeModule           = "module"
	TypeComment          = "comment"
	TypeError            = "ERROR"
	TypeIdentifier       = "identifier"
	TypeExpressionStmt   = "expression_statement"
	TypeAssignment       = "assignment"
	TypeAugAssignment    = "augmented_assignment"
	TypeImport           = "import_statement"
	TypeImportFrom       = "import_from_statement"
	TypeFutureImport     = "future_import_statement"
	TypeFunction         = "function_definition"
	TypeClass            = "class_definition"
	TypeDecorated        = "decorated_definition"
	TypeDecorator        = "decorator"
	TypeBlock            = "block"
	TypeReturn           = "return_statement"
	TypeIf               = "if_statement"
	TypeFor              = "for_statement"
	TypeWhile            = "while_statement"
	TypeTry              = "try_statement"
	TypeWith             = "with_statement"
	TypePass             = "pass_statement"
	TypeEllipsis         = "ellipsis"
	TypeParameters       = "parameters"
	TypeTypedParam       = "typed_parameter"
	TypeDefaultParam     = "default_parameter"
	TypeTypedDefault     = "typed_default_parameter"
	TypeListSplat        = "list_splat_pattern"
	TypeDictSplat        = "dictionary_splat_pattern"
	TypeKeywordSeparator = "keyword_separator"
	TypePositionalSep    = "positional_separator"
	TypeType             = "type"
	TypeGenericType      = "generic_type"
	TypeTypeParameter    = "type_parameter"
	TypeMemberType       = "member_type"
	TypeUnionType        = "union_type"
	TypeSubscript        = "subscript"
	TypeAttribute        = "attribute"
	TypeCall             = "call"
	TypeArgumentList     = "argument_list"
	TypeKeywordArgument  = "keyword_argument"
	TypeBinaryOperator   = "binary_operator"
	TypeUnaryOperator    = "unary_operator"
	TypeBooleanOperator  = "boolean_operator"
	TypeComparison       = "comparison_operator"
	TypeNot              = "not_operator"
	TypeParenthesized    = "parenthesized_expression"
	TypeConditionalExpr  = "conditional_expression"
	TypeLambda           = "lambda"
	TypeInteger          = "integer"
	TypeFloat            = "float"
	TypeString           = "string"
	TypeConcatString     = "concatenated_string"
	TypeTrue             = "true"
	TypeFalse            = "false"
	TypeNone             = "none"
	TypeList             = "list"
	TypeTuple            = "tuple"
	TypeDictionary       = "dictionary"
	TypeSet              = "set"
	TypeListComp         = "list_comprehension"
	TypeDictComp         = "dictionary_comprehension"
	TypeSetComp          = "set_comprehension"
	TypeGenerator        = "generator_expression"
	TypeDottedName       = "dotted_name"
	TypeAliasedImport    = "aliased_import"
	TypeWildcardImport   = "wildcard_import"
	TypeRelativeImport   = "relative_import"
	TypeImportPrefix     = "import_prefix"
	TypeExpressionList   = "expression_list"
	TypePatternList      = "pattern_list"
	TypeTuplePattern     = "tuple_pattern"
	TypeListPattern      = "list_pattern"
	TypeYield            = "yield"
	TypeRaise            = "raise_statement"
	TypeElifClause       = "elif_clause"
	TypeElseClause       = "else_clause"
	TypeExceptClause     = "except_clause"
	TypeFinallyClause    = "finally_clause"
	TypeWithClause       = "with_clause"
	TypeWithItem         = "with_item"
	TypeAsPattern        = "as_pattern"
	TypeAsPatternTarget  = "as_pattern_target"
	TypeNamedExpr        = "named_expression"
	TypeGlobal           = "global_statement"
	TypeForInClause      = "for_in_clause"
	TypeIfClause         = "if_clause"
	TypePair             = "pair"
	TypeSlice            = "slice"
	TypeAwait            = "await"
	TypeListSplatExpr    = "list_splat"
	TypeDictSplatExpr    = "dictionary_splat"
)

var language = sync.OnceValue(func() *sitter.Language {
	return sitter.NewLanguage(python.GetLanguage())
})

var parserPool = sync.Pool{
	New: func() any {
		tsParser := sitter.NewParser()
		tsParser.SetLanguage(language())

		return tsParser
	},
}

// Tree is a parsed Python source. Close releases the native tree.
type Tree struct {
	tree   *sitter.Tree
	source []byte
}

// Parse parses Python source text.
func Parse(ctx context.Context, source []byte) (*Tree, error) {
	tsParser, ok := parserPool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}

	defer parserPool.Put(tsParser)

	tree, err := tsParser.ParseString(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("pysyntax: parse: %w", err)
	}

	if tree.RootNode().IsNull() {
		tree.Close()

		return nil, errNoRootNode
	}

	return &Tree{tree: tree, source: source}, nil
}

// Close releases the tree.
func (t *Tree) Close() {
	t.tree.Close()
}

// Root returns the module node.
func (t *Tree) Root() sitter.Node {
	return t.tree.RootNode()
}

// Source returns the parsed bytes.
func (t *Tree) Source() []byte {
	return t.source
}

// Text returns the source text covered by n.
func (t *Tree) Text(n sitter.Node) string {
	if n.IsNull() {
		return ""
	}

	return n.Content(t.source)
}

// Line returns the 1-based line n starts on.
func Line(n sitter.Node) int {
	return int(n.StartPoint().Row) + 1 //nolint:gosec // tree-sitter coordinates fit in int
}

// Children returns the named children of n, skipping comments.
func Children(n sitter.Node) []sitter.Node {
	count := n.NamedChildCount()
	out := make([]sitter.Node, 0, count)

	for idx := range count {
		child := n.NamedChild(idx)
		if child.IsNull() || child.Type() == TypeComment {
			continue
		}

		out = append(out, child)
	}

	return out
}

// Field returns the child stored under a grammar field, and whether it exists.
func Field(n sitter.Node, name string) (sitter.Node, bool) {
	child := n.ChildByFieldName(name)

	return child, !child.IsNull()
}

// FirstError returns the first syntax error in document order: an ERROR node
// or a token the parser had to invent.
func FirstError(n sitter.Node) (sitter.Node, bool) {
	if n.Type() == TypeError || n.IsMissing() {
		return n, true
	}

	if !n.HasError() {
		return sitter.Node{}, false
	}

	for idx := range n.ChildCount() {
		child := n.Child(idx)
		if child.IsNull() {
			continue
		}

		if found, ok := FirstError(child); ok {
			return found, true
		}
	}

	return n, true
}
