package infer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

//go:embed builtins.pytd
var builtinsSource string

var builtinsVersion = config.Version{Major: 3}

var embeddedBuiltins = sync.OnceValues(func() (*pytd.Module, error) {
	return pytd.Parse(builtinsSource, builtinsVersion)
})

// builtinNames never raise name errors, even with builtins preloading off.
var builtinNames = sync.OnceValue(func() map[string]bool {
	names := make(map[string]bool)

	m, err := embeddedBuiltins()
	if err != nil {
		return names
	}

	for _, c := range m.Constants {
		names[c.Name] = true
	}

	for _, c := range m.Classes {
		names[c.Name] = true
	}

	for _, fn := range m.Functions {
		names[fn.Name] = true
	}

	for _, name := range []string{"True", "False", "None", "NotImplemented", "Ellipsis", "super", "globals", "locals", "vars", "dir", "exit", "quit", "format", "map", "filter", "reversed", "divmod", "pow", "bin", "hex", "oct", "staticmethod", "classmethod", "property", "memoryview", "bytearray", "slice", "exec", "eval", "compile", "__import__", "breakpoint", "help", "delattr", "aiter", "anext"} {
		names[name] = true
	}

	return names
})

// loadBuiltins returns the builtins stub for an analysis: the embedded one,
// a custom file, or an empty module when preloading is off.
func loadBuiltins(opts Options) (*pytd.Module, error) {
	if !opts.RunBuiltins {
		return &pytd.Module{}, nil
	}

	if opts.BuiltinsPath == "" {
		m, err := embeddedBuiltins()
		if err != nil {
			return nil, fmt.Errorf("embedded builtins: %w", err)
		}

		return m, nil
	}

	data, err := os.ReadFile(opts.BuiltinsPath)
	if err != nil {
		return nil, fmt.Errorf("read builtins: %w", err)
	}

	m, err := pytd.Parse(string(data), opts.Version)
	if err != nil {
		return nil, fmt.Errorf("parse builtins %s: %w", opts.BuiltinsPath, err)
	}

	return m, nil
}

// typingAliases maps the capitalized typing containers to the builtins used
// in generated stubs.
var typingAliases = map[string]string{
	"List":      "list",
	"Dict":      "dict",
	"Set":       "set",
	"FrozenSet": "frozenset",
	"Tuple":     "tuple",
	"Type":      "type",
	"Text":      "str",
}

// normalizeAnnotationName rewrites typing spellings to their stub form.
func normalizeAnnotationName(name string) string {
	name = strings.TrimPrefix(name, "typing.")
	name = strings.TrimPrefix(name, "typing_extensions.")

	if alias, ok := typingAliases[name]; ok {
		return alias
	}

	return name
}

// typingModules are imported for their names only; they never need a stub.
var typingModules = map[string]bool{
	"typing":            true,
	"typing_extensions": true,
	"__future__":        true,
}

// opaqueModules are standard library packages the engine treats as untyped
// rather than reporting as missing.
var opaqueModules = map[string]bool{
	"abc": true, "argparse": true, "array": true, "asyncio": true, "base64": true,
	"bisect": true, "codecs": true, "collections": true, "contextlib": true, "copy": true,
	"csv": true, "dataclasses": true, "datetime": true, "decimal": true, "email": true,
	"enum": true, "errno": true, "fractions": true, "functools": true, "getpass": true,
	"glob": true, "gzip": true, "hashlib": true, "heapq": true, "html": true,
	"http": true, "inspect": true, "io": true, "itertools": true, "json": true,
	"locale": true, "logging": true, "math": true, "numbers": true, "operator": true,
	"os": true, "pathlib": true, "pickle": true, "platform": true, "queue": true,
	"random": true, "re": true, "select": true, "shutil": true, "signal": true,
	"socket": true, "stat": true, "string": true, "struct": true, "subprocess": true,
	"sys": true, "tarfile": true, "tempfile": true, "textwrap": true, "threading": true,
	"time": true, "traceback": true, "types": true, "unittest": true, "urllib": true,
	"uuid": true, "warnings": true, "weakref": true, "xml": true, "zipfile": true,
}

func isOpaque(module string) bool {
	root, _, _ := strings.Cut(module, ".")

	return opaqueModules[root]
}
