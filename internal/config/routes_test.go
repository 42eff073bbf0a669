package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wudi/urlforward/internal/errors"
)

const defaultsYAML = `
- url: "::dummy::"
  methods: [GET, POST]
  forwards:
    - method: GET
      follow_redirects: true
      headers:
        X-Forwarded-By: urlforward
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func routeByURL(set *RouteSet, url string) *RouteInput {
	for i := range set.Routes {
		if set.Routes[i].URL == url {
			return &set.Routes[i]
		}
	}
	return nil
}

func TestLoadRoutesFirstListedFileWins(t *testing.T) {
	dir := t.TempDir()
	local := writeFile(t, dir, "local.yaml", `
- url: /hook
  forwards:
    - url: http://local.example/hook
`)
	main := writeFile(t, dir, "routes.yaml", `
- url: /hook
  forwards:
    - url: http://main.example/hook
- url: /other
  forwards:
    - url: http://main.example/other
`)
	defaults := writeFile(t, dir, "defaults.yaml", defaultsYAML)

	set, err := NewLoader().LoadRoutes([]string{local, main}, defaults)
	if err != nil {
		t.Fatalf("LoadRoutes failed: %v", err)
	}

	if len(set.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(set.Routes))
	}
	hook := routeByURL(set, "/hook")
	if hook == nil || *hook.Forwards[0].URL != "http://local.example/hook" {
		t.Errorf("expected /hook from local.yaml, got %+v", hook)
	}
	if routeByURL(set, "/other") == nil {
		t.Error("expected /other from routes.yaml")
	}
	if len(set.Files) != 3 || set.Files[2] != defaults {
		t.Errorf("unexpected files %v", set.Files)
	}
}

func TestLoadRoutesLaterDuplicateInFileReplaces(t *testing.T) {
	dir := t.TempDir()
	routes := writeFile(t, dir, "routes.yaml", `
- url: /a
  forwards:
    - url: http://first.example
- url: /a
  forwards:
    - url: http://second.example
`)
	defaults := writeFile(t, dir, "defaults.yaml", defaultsYAML)

	set, err := NewLoader().LoadRoutes([]string{routes}, defaults)
	if err != nil {
		t.Fatalf("LoadRoutes failed: %v", err)
	}
	if len(set.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(set.Routes))
	}
	if got := *set.Routes[0].Forwards[0].URL; got != "http://second.example" {
		t.Errorf("expected later record to win, got %s", got)
	}
}

func TestLoadRoutesTemplate(t *testing.T) {
	dir := t.TempDir()
	routes := writeFile(t, dir, "routes.yaml", `
- url: /a
  forwards:
    - url: http://a.example
`)

	t.Run("from defaults file", func(t *testing.T) {
		defaults := writeFile(t, dir, "defaults.yaml", defaultsYAML)
		set, err := NewLoader().LoadRoutes([]string{routes}, defaults)
		if err != nil {
			t.Fatalf("LoadRoutes failed: %v", err)
		}
		if set.Template == nil {
			t.Fatal("expected template")
		}
		if len(set.Template.Methods) != 2 {
			t.Errorf("expected template methods, got %v", set.Template.Methods)
		}
		if set.Template.Forwards[0].Headers["X-Forwarded-By"] != "urlforward" {
			t.Errorf("unexpected forward template %+v", set.Template.Forwards[0])
		}
	})

	t.Run("defaults file without sentinel", func(t *testing.T) {
		defaults := writeFile(t, dir, "empty-defaults.yaml", "- url: /not-a-template\n")
		_, err := NewLoader().LoadRoutes([]string{routes}, defaults)
		if _, ok := errors.AsConfigError(err); !ok {
			t.Fatalf("expected ConfigError, got %v", err)
		}
	})

	t.Run("from route files", func(t *testing.T) {
		combined := writeFile(t, dir, "combined.yaml", defaultsYAML+`
- url: /b
  forwards:
    - url: http://b.example
`)
		set, err := NewLoader().LoadRoutes([]string{combined}, "")
		if err != nil {
			t.Fatalf("LoadRoutes failed: %v", err)
		}
		if set.Template == nil {
			t.Fatal("expected template from route file")
		}
		if routeByURL(set, TemplatePath) != nil {
			t.Error("template must not be listed as a route")
		}
		if len(set.Routes) != 1 {
			t.Errorf("expected 1 route, got %d", len(set.Routes))
		}
	})
}

func TestLoadRoutesGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "routes.d/b.yaml", "- url: /b\n  forwards:\n    - url: http://b.example\n")
	writeFile(t, dir, "routes.d/nested/a.yaml", "- url: /a\n  forwards:\n    - url: http://a.example\n")
	writeFile(t, dir, "routes.d/readme.txt", "not yaml")
	defaults := writeFile(t, dir, "defaults.yaml", defaultsYAML)

	set, err := NewLoader().LoadRoutes([]string{filepath.Join(dir, "routes.d", "**", "*.yaml")}, defaults)
	if err != nil {
		t.Fatalf("LoadRoutes failed: %v", err)
	}
	if len(set.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(set.Routes))
	}

	_, err = NewLoader().LoadRoutes([]string{filepath.Join(dir, "nothing", "*.yaml")}, defaults)
	if _, ok := errors.AsConfigError(err); !ok {
		t.Errorf("expected ConfigError for empty glob, got %v", err)
	}
}

func TestLoadRoutesErrors(t *testing.T) {
	dir := t.TempDir()
	defaults := writeFile(t, dir, "defaults.yaml", defaultsYAML)
	broken := writeFile(t, dir, "broken.yaml", "- url: /a\n  forwards: [unclosed\n")

	tests := []struct {
		name     string
		patterns []string
	}{
		{"no files", nil},
		{"missing file", []string{filepath.Join(dir, "missing.yaml")}},
		{"invalid yaml", []string{broken}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadRoutes(tt.patterns, defaults)
			if _, ok := errors.AsConfigError(err); !ok {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestParseRoutesFields(t *testing.T) {
	t.Setenv("TEST_HOOK_TOKEN", "s3cret")

	data := []byte(`
- url: /hook
  methods: [POST]
  remote_addr: [10.0.0.0/8, 127.0.0.1]
  forwards:
    - url: http://a.example/in
      method: POST
      follow_redirects: false
      user: bob
      pass: ${TEST_HOOK_TOKEN}
      remove: [secret]
      only: []
      default: {source: hook}
      set: {token: fixed}
      timeout: 2s
    - url: http://b.example/in
`)

	records, err := NewLoader().ParseRoutes("inline", data)
	if err != nil {
		t.Fatalf("ParseRoutes failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if len(r.Methods) != 1 || r.Methods[0] != "POST" {
		t.Errorf("unexpected methods %v", r.Methods)
	}
	if len(r.RemoteAddr) != 2 {
		t.Errorf("unexpected remote_addr %v", r.RemoteAddr)
	}

	f := r.Forwards[0]
	if f.FollowRedirects == nil || *f.FollowRedirects {
		t.Error("expected follow_redirects false")
	}
	login, password := f.Credentials()
	if login == nil || *login != "bob" {
		t.Errorf("expected user alias for login, got %v", login)
	}
	if password == nil || *password != "s3cret" {
		t.Errorf("expected pass alias with env expansion, got %v", password)
	}
	if f.Only == nil || len(f.Only) != 0 {
		t.Errorf("explicit empty only must be present and empty, got %#v", f.Only)
	}
	if f.Default["source"] != "hook" || f.Set["token"] != "fixed" {
		t.Errorf("unexpected default/set %v %v", f.Default, f.Set)
	}
	if f.Timeout == nil || *f.Timeout != 2*time.Second {
		t.Errorf("expected timeout 2s, got %v", f.Timeout)
	}

	g := r.Forwards[1]
	if g.Method != nil || g.Only != nil || g.Headers != nil || g.FollowRedirects != nil {
		t.Errorf("omitted fields must stay unset, got %+v", g)
	}
}

func TestCredentialsPreferCanonicalNames(t *testing.T) {
	login, user := "alice", "bob"
	f := ForwardInput{Login: &login, User: &user}
	got, password := f.Credentials()
	if *got != "alice" {
		t.Errorf("expected login to win over user, got %s", *got)
	}
	if password != nil {
		t.Errorf("expected no password, got %s", *password)
	}
}
