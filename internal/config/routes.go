package config

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/wudi/urlforward/internal/errors"
)

// TemplatePath is the path of the record holding default values. Its first
// forward is the template for every forward of every route.
const TemplatePath = "::dummy::"

// RouteInput is one route record as written in a route file. Fields left out
// of the file stay nil and fall through to the template when resolved.
type RouteInput struct {
	URL        string         `yaml:"url" json:"url"`
	Methods    []string       `yaml:"methods" json:"methods,omitempty"`
	RemoteAddr []string       `yaml:"remote_addr" json:"remote_addr,omitempty"`
	Forwards   []ForwardInput `yaml:"forwards" json:"forwards,omitempty"`
}

// ForwardInput is one outbound request declaration.
type ForwardInput struct {
	URL             *string           `yaml:"url" json:"url,omitempty"`
	Method          *string           `yaml:"method" json:"method,omitempty"`
	Headers         map[string]string `yaml:"headers" json:"headers,omitempty"`
	FollowRedirects *bool             `yaml:"follow_redirects" json:"follow_redirects,omitempty"`
	Login           *string           `yaml:"login" json:"login,omitempty"`
	Password        *string           `yaml:"password" json:"-"`
	Remove          []string          `yaml:"remove" json:"remove,omitempty"`
	Only            []string          `yaml:"only" json:"only,omitempty"`
	Default         map[string]string `yaml:"default" json:"default,omitempty"`
	Set             map[string]string `yaml:"set" json:"set,omitempty"`
	Timeout         *time.Duration    `yaml:"timeout" json:"timeout,omitempty"`

	// User and Pass are older spellings of Login and Password.
	User *string `yaml:"user" json:"-"`
	Pass *string `yaml:"pass" json:"-"`
}

// Credentials returns login and password, honoring the older spellings.
// A nil result means the field is not set on this record.
func (f *ForwardInput) Credentials() (login, password *string) {
	login, password = f.Login, f.Password
	if login == nil {
		login = f.User
	}
	if password == nil {
		password = f.Pass
	}
	return login, password
}

// RouteSet is the raw routing configuration gathered from disk.
type RouteSet struct {
	Routes   []RouteInput
	Template *RouteInput
	// Files lists every file read, in precedence order, defaults file last.
	Files []string
}

// LoadRoutes reads the route files matched by patterns plus the optional
// defaults file. For a path declared in several files the file listed first
// wins; inside one file a later record replaces an earlier one with the same
// path. The template record is taken from the defaults file, or from the
// route files when defaultsPath is empty.
func (l *Loader) LoadRoutes(patterns []string, defaultsPath string) (*RouteSet, error) {
	files, err := ExpandRouteFiles(patterns)
	if err != nil {
		return nil, err
	}

	set := &RouteSet{Files: files}
	index := make(map[string]int)

	// Lowest precedence first so higher precedence files overwrite.
	for i := len(files) - 1; i >= 0; i-- {
		records, err := l.readRouteFile(files[i])
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.URL == TemplatePath {
				if defaultsPath == "" {
					tmpl := rec
					set.Template = &tmpl
				}
				continue
			}
			if rec.URL == "" {
				// Kept so resolution reports it.
				set.Routes = append(set.Routes, rec)
				continue
			}
			if pos, ok := index[rec.URL]; ok {
				set.Routes[pos] = rec
				continue
			}
			index[rec.URL] = len(set.Routes)
			set.Routes = append(set.Routes, rec)
		}
	}

	if defaultsPath != "" {
		records, err := l.readRouteFile(defaultsPath)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.URL == TemplatePath {
				tmpl := rec
				set.Template = &tmpl
			}
		}
		if set.Template == nil {
			return nil, errors.NewConfigError(defaultsPath, "no %q record", TemplatePath)
		}
		set.Files = append(set.Files, defaultsPath)
	}

	return set, nil
}

// ExpandRouteFiles resolves glob patterns to file names, keeping the order of
// the patterns. Plain paths are returned as given.
func ExpandRouteFiles(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, errors.NewConfigError("", "no route files configured")
	}

	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			if !seen[pattern] {
				seen[pattern] = true
				files = append(files, pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.WrapConfigError(err, pattern, "bad pattern")
		}
		if len(matches) == 0 {
			return nil, errors.NewConfigError(pattern, "pattern matched no files")
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func hasMeta(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func (l *Loader) readRouteFile(path string) ([]RouteInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(err, path, "read failed")
	}
	return l.ParseRoutes(filepath.Base(path), data)
}

// ParseRoutes decodes a route file body: a YAML list of route records.
func (l *Loader) ParseRoutes(source string, data []byte) ([]RouteInput, error) {
	expanded := l.expandEnvVars(string(data))

	var records []RouteInput
	if err := yaml.Unmarshal([]byte(expanded), &records); err != nil {
		return nil, errors.WrapConfigError(err, source, "failed to parse YAML")
	}
	return records, nil
}
