package infer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

const initStub = "__init__"

// importer resolves module names to stubs for one analysis. Results are
// memoized, including failures.
type importer struct {
	opts     Options
	imports  importmap.Map
	log      *diag.Log
	filename string
	loaded   map[string]*moduleRef
	missing  map[string]bool
}

func newImporter(req Request) *importer {
	return &importer{
		opts:     req.Options,
		imports:  req.Imports,
		log:      req.Log,
		filename: req.Filename,
		loaded:   make(map[string]*moduleRef),
		missing:  make(map[string]bool),
	}
}

// dropPrefix strips the first configured prefix that names a package of
// module.
func (im *importer) dropPrefix(module string) string {
	for _, prefix := range im.opts.DropPrefixes {
		prefix = strings.TrimSuffix(prefix, ".")

		if rest, ok := strings.CutPrefix(module, prefix+"."); ok {
			return rest
		}
	}

	return module
}

// resolve loads module, reporting an import error at line when it cannot be
// found. The second result is false for unresolved modules.
func (im *importer) resolve(module string, line int) (*moduleRef, bool) {
	if ref, ok := im.loaded[module]; ok {
		return ref, true
	}

	if im.missing[module] {
		return nil, false
	}

	ref, err := im.load(module)
	if err != nil {
		im.missing[module] = true
		im.log.Addf(im.filename, line, diag.KindImportError, "%v", err)

		return nil, false
	}

	im.loaded[module] = ref

	return ref, true
}

// tryLoad loads module without reporting failures; packages and submodule
// attributes are probed this way.
func (im *importer) tryLoad(module string) (*moduleRef, bool) {
	if ref, ok := im.loaded[module]; ok {
		return ref, true
	}

	if im.missing[module] {
		return nil, false
	}

	ref, err := im.load(module)
	if err != nil {
		return nil, false
	}

	im.loaded[module] = ref

	return ref, true
}

var errModuleNotFound = errors.New("module not found")

func (im *importer) load(module string) (*moduleRef, error) {
	if typingModules[module] {
		return &moduleRef{name: module}, nil
	}

	lookup := im.dropPrefix(module)

	if path, ok := im.imports.Lookup(lookup); ok {
		return im.loadFile(module, path)
	}

	for _, dir := range im.opts.SearchPath {
		base := filepath.Join(append([]string{dir}, strings.Split(lookup, ".")...)...)

		for _, candidate := range []string{base + im.opts.ImportExt, filepath.Join(base, initStub+im.opts.ImportExt)} {
			if _, err := os.Stat(candidate); err == nil {
				return im.loadFile(module, candidate)
			}
		}
	}

	if isOpaque(lookup) {
		return &moduleRef{name: module}, nil
	}

	return nil, fmt.Errorf("can't find module %q: %w", module, errModuleNotFound)
}

func (im *importer) loadFile(module, path string) (*moduleRef, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stub for module %q not found at %s: %w", module, path, errModuleNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("read stub for module %q: %w", module, err)
	}

	stub, err := pytd.Parse(string(data), im.opts.Version)
	if err != nil {
		return nil, fmt.Errorf("couldn't import stub for module %q from %s: %w", module, path, err)
	}

	stub.Name = module

	return &moduleRef{name: module, stub: stub}, nil
}

// absolute resolves a relative import of the given level against current,
// the importing module's dotted name.
func absolute(current string, level int, name string) (string, bool) {
	parts := strings.Split(current, ".")
	if level > len(parts) {
		return "", false
	}

	base := strings.Join(parts[:len(parts)-level], ".")

	switch {
	case base == "":
		return name, name != ""
	case name == "":
		return base, true
	default:
		return base + "." + name, true
	}
}

// member looks up a top-level declaration of an imported stub.
func (ref *moduleRef) member(name string) (symbol, bool) {
	if ref.stub == nil {
		return valueSym(pytd.AnyType), true
	}

	switch decl := ref.stub.Lookup(name).(type) {
	case *pytd.Function:
		return symbol{kind: symStubFunc, stubFn: decl, module: ref}, true
	case *pytd.Class:
		return symbol{kind: symStubClass, stubClass: &stubClass{qualified: ref.name + "." + decl.Name, class: decl, owner: ref}}, true
	case *pytd.Constant:
		return valueSym(ref.qualify(decl.Type)), true
	default:
		return symbol{}, false
	}
}

// qualify rewrites references to the stub's own classes into dotted names.
func (ref *moduleRef) qualify(t pytd.Type) pytd.Type {
	if ref == nil || ref.stub == nil || t == nil {
		return t
	}

	return pytd.Replace(t, func(n pytd.Named) pytd.Type {
		if _, ok := ref.stub.Lookup(n.Name).(*pytd.Class); ok {
			return pytd.NamedType(ref.name + "." + n.Name)
		}

		return nil
	})
}
