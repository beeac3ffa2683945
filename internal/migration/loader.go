package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// filenamePattern matches V{version}__{description}.{ext}, e.g. V001__create_users.sql.
var filenamePattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once, used by DiscoverFS
	`^V(\d+)__(.+)\.([A-Za-z0-9]+)$`,
)

// DefaultExtension is the only file extension accepted unless overridden.
const DefaultExtension = "sql"

type loadOptions struct {
	extensions map[string]struct{}
}

// LoadOption configures discovery.
type LoadOption func(*loadOptions)

// WithExtensions replaces the set of accepted file extensions (without the dot).
func WithExtensions(exts ...string) LoadOption {
	return func(o *loadOptions) {
		o.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			o.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
		}
	}
}

// Discover reads the migrations directory at dir and returns its scripts in
// ascending version order.
func Discover(dir string, opts ...LoadOption) ([]Script, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &SourceUnreadableError{Path: dir, Err: err}
	}

	if !info.IsDir() {
		return nil, &SourceUnreadableError{Path: dir, Err: errors.New("not a directory")}
	}

	scripts, err := DiscoverFS(os.DirFS(dir), ".", opts...)
	if err != nil {
		return nil, err
	}

	for i := range scripts {
		scripts[i].Path = filepath.Join(dir, scripts[i].FileName)
	}

	return scripts, nil
}

// DiscoverFS is Discover over an arbitrary file system, such as an embed.FS.
func DiscoverFS(fsys fs.FS, dir string, opts ...LoadOption) ([]Script, error) {
	o := loadOptions{}
	WithExtensions(DefaultExtension)(&o)

	for _, opt := range opts {
		opt(&o)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, &SourceUnreadableError{Path: dir, Err: err}
	}

	var scripts []Script

	seen := make(map[string]string) // canonical version -> file name

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, description, ok := parseFileName(entry.Name(), o.extensions)
		if !ok {
			continue
		}

		key := CanonicalVersion(version)
		if first, dup := seen[key]; dup {
			return nil, &DuplicateVersionError{
				Version: version,
				First:   first,
				Second:  entry.Name(),
				Source:  DuplicateInSource,
			}
		}

		seen[key] = entry.Name()

		s, err := readScript(fsys, dir, entry.Name(), version, description)
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, s)
	}

	return SortScripts(scripts), nil
}

// parseFileName extracts version and description, rejecting names that do
// not follow the convention or carry an unaccepted extension.
func parseFileName(name string, extensions map[string]struct{}) (version, description string, ok bool) {
	matches := filenamePattern.FindStringSubmatch(name)
	if matches == nil {
		return "", "", false
	}

	if _, accepted := extensions[strings.ToLower(matches[3])]; !accepted {
		return "", "", false
	}

	return matches[1], matches[2], true
}

func readScript(fsys fs.FS, dir, name, version, description string) (Script, error) {
	p := path.Join(dir, name)

	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return Script{}, &SourceUnreadableError{Path: p, Err: fmt.Errorf("reading migration file: %w", err)}
	}

	return Script{
		Version:     version,
		Description: description,
		FileName:    name,
		Path:        p,
		Content:     data,
		Checksum:    ComputeChecksum(data),
	}, nil
}
