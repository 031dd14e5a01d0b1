package echoc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadModuleBuiltinShortCircuits(t *testing.T) {
	in := NewInterpreter(nil)
	v, err := in.loadModule("weaver", Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KDict {
		t.Fatalf("expected the weaver module to be a dict, got %v", v.Kind)
	}
	if _, ok := v.Dict.D.TryGet(StringVal("weave")); !ok {
		t.Error("expected the weaver module to export 'weave'")
	}
}

func TestLoadModuleFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greet.echo")
	if err := os.WriteFile(path, []byte("let name = \"world\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	in := NewInterpreter(nil)
	v, err := in.loadModule(path, Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KDict {
		t.Fatalf("expected module export to be a dict, got %v", v.Kind)
	}
	name, ok := v.Dict.D.TryGet(StringVal("name"))
	if !ok || name.S != "world" {
		t.Errorf("expected exported name=world, got %+v, %v", name, ok)
	}
}

func TestExportDictSkipsUnderscorePrefixed(t *testing.T) {
	scope := NewScope(nil)
	scope.Define("public", IntVal(1))
	scope.Define("_private", IntVal(2))
	d := exportDict(scope)
	if _, ok := d.Dict.D.TryGet(StringVal("public")); !ok {
		t.Error("expected 'public' to be exported")
	}
	if _, ok := d.Dict.D.TryGet(StringVal("_private")); ok {
		t.Error("expected '_private' to be skipped")
	}
}

func TestResolveModulePathSearchesEchoHome(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "lib.echo"), []byte("let x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.EchoHome = home
	in := NewInterpreter(&cfg)
	resolved, err := in.resolveModulePath("lib.echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(home, "lib.echo"))
	if resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}
}

func TestResolveModulePathNotFound(t *testing.T) {
	in := NewInterpreter(nil)
	if _, err := in.resolveModulePath("does-not-exist.echo"); err == nil {
		t.Error("expected an error for a module path that resolves to nothing")
	}
}

func TestLoadModuleCachesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "once.echo")
	if err := os.WriteFile(path, []byte("let x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	in := NewInterpreter(nil)
	first, err := in.loadModule(path, Position{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := in.loadModule(path, Position{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Dict.D != second.Dict.D {
		t.Error("expected the second load to hit the cache and return the same backing dict")
	}
}
