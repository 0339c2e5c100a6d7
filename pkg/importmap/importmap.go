// Package importmap maps module names to the stub files that describe them.
//
// A map is built once per run from an optional description file and from the
// units being processed, and is read-only afterwards.
package importmap

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

// ErrInvalidDescription is returned for an unreadable or malformed import map
// description. It is a configuration error.
var ErrInvalidDescription = fmt.Errorf("%w: invalid import map description", config.ErrConfiguration)

//go:embed schema.json
var descriptionSchema []byte

// sourceExtensions are stripped from description keys and unit inputs when
// deriving module names.
var sourceExtensions = []string{".py", ".pyi", ".pytd"}

const initModule = "__init__"

// Map is an immutable module name to stub path mapping. The zero value is an
// empty map.
type Map struct {
	entries map[string]string
}

// New returns a map holding a copy of entries.
func New(entries map[string]string) Map {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}

	return Map{entries: copied}
}

// Lookup returns the stub path registered for module.
func (m Map) Lookup(module string) (string, bool) {
	path, ok := m.entries[module]

	return path, ok
}

// Len returns the number of registered modules.
func (m Map) Len() int {
	return len(m.entries)
}

// Modules returns the registered module names, sorted.
func (m Map) Modules() []string {
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}

	slices.Sort(out)

	return out
}

// Build reads the description at descriptionPath, if any, and registers the
// output of every unit under the unit's module name so later units can import
// earlier units' stubs. Described stubs missing on disk are redirected to the
// placeholder when one is given.
func Build(ctx context.Context, descriptionPath string, list []units.Unit, searchPath []string, placeholder *Placeholder) (Map, error) {
	entries := make(map[string]string)

	if descriptionPath != "" {
		described, err := readDescription(descriptionPath)
		if err != nil {
			return Map{}, err
		}

		for module, path := range described {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Map{}, ctxErr
			}

			if placeholder != nil && !exists(path) {
				path = placeholder.Path()
			}

			entries[module] = path
		}
	}

	for _, u := range list {
		if !u.HasOutput() {
			continue
		}

		entries[ModuleName(u.Input, searchPath)] = u.Output
	}

	return Map{entries: entries}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func readDescription(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescription, err)
	}

	var raw map[string]string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = parseYAML(data)
	case ".json":
		raw, err = parseJSON(data)
	default:
		raw, err = parseText(data)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDescription, path, err)
	}

	out := make(map[string]string, len(raw))
	for key, target := range raw {
		out[normalizeKey(key)] = target
	}

	return out, nil
}

type description struct {
	Modules map[string]string `json:"modules" yaml:"modules"`
}

var errMissingModules = errors.New("missing 'modules' mapping")

func parseYAML(data []byte) (map[string]string, error) {
	var doc description

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, err
	}

	if doc.Modules == nil {
		return nil, errMissingModules
	}

	return doc.Modules, nil
}

func parseJSON(data []byte) (map[string]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(descriptionSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, err
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			problems = append(problems, verr.Field()+": "+verr.Description())
		}

		return nil, errors.New(strings.Join(problems, "; "))
	}

	var doc description

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, err
	}

	return doc.Modules, nil
}

// parseText reads "module path" lines; blank lines and '#' comments are
// ignored.
func parseText(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"module path\", got %q", lineNo, line)
		}

		out[fields[0]] = fields[1]
	}

	err := scanner.Err()
	if err != nil {
		return nil, err
	}

	return out, nil
}

// normalizeKey turns "pkg/mod.pytd" style keys into dotted module names.
func normalizeKey(key string) string {
	if !strings.ContainsAny(key, `/\`) && !hasSourceExt(key) {
		return key
	}

	return dotted(filepath.ToSlash(key))
}

func hasSourceExt(name string) bool {
	return slices.Contains(sourceExtensions, filepath.Ext(name))
}

// ModuleName derives the dotted module name of a source file: the path
// relative to the first search path entry containing it, without extension,
// with separators turned into dots. Package initializers name their package.
func ModuleName(filename string, searchPath []string) string {
	path := filepath.Clean(filename)

	for _, dir := range searchPath {
		rel, err := filepath.Rel(filepath.Clean(dir), path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		path = rel

		break
	}

	return dotted(filepath.ToSlash(path))
}

func dotted(slashPath string) string {
	if ext := filepath.Ext(slashPath); slices.Contains(sourceExtensions, ext) {
		slashPath = strings.TrimSuffix(slashPath, ext)
	}

	slashPath = strings.TrimLeft(strings.TrimPrefix(slashPath, "./"), "/")

	parts := strings.Split(slashPath, "/")
	if len(parts) > 1 && parts[len(parts)-1] == initModule {
		parts = parts[:len(parts)-1]
	}

	return strings.Join(parts, ".")
}

// Placeholder is an empty stub file that stands in for described stubs that
// do not exist yet.
type Placeholder struct {
	path     string
	released bool
}

// AcquirePlaceholder creates the placeholder file in dir; an empty dir means
// the system temporary directory.
func AcquirePlaceholder(dir string) (*Placeholder, error) {
	file, err := os.CreateTemp(dir, "stubforge-empty-*.pytd")
	if err != nil {
		return nil, fmt.Errorf("create placeholder: %w", err)
	}

	closeErr := file.Close()
	if closeErr != nil {
		return nil, errors.Join(fmt.Errorf("close placeholder: %w", closeErr), os.Remove(file.Name()))
	}

	return &Placeholder{path: file.Name()}, nil
}

// Path returns the placeholder file path.
func (p *Placeholder) Path() string {
	return p.path
}

// Release removes the placeholder. It is safe to call more than once.
func (p *Placeholder) Release() error {
	if p == nil || p.released {
		return nil
	}

	p.released = true

	err := os.Remove(p.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove placeholder: %w", err)
	}

	return nil
}
