package plugins

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("query"); q != "essentials" {
			t.Errorf("unexpected query %q", q)
		}
		fmt.Fprint(w, `{"hits":[
			{"slug":"essentialsx","title":"EssentialsX","description":"The essential plugin suite","author":"mdcfe"},
			{"slug":"essentials-lite","title":"Essentials Lite","description":"Lightweight fork","author":"someone"}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewManager()
	m.APIBase = srv.URL

	hits, err := m.Search(context.Background(), "essentials", "1.21.4")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Name != "essentialsx" || hits[0].Author != "mdcfe" {
		t.Errorf("unexpected first hit: %+v", hits[0])
	}
}

func TestInstallPicksPrimaryFile(t *testing.T) {
	jar := []byte("plugin jar bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/essentialsx/version":
			base := "http://" + r.Host
			fmt.Fprintf(w, `[{"version_number":"2.20.1","files":[
				{"url":"%s/files/sources.jar","filename":"sources.jar","primary":false},
				{"url":"%s/files/EssentialsX-2.20.1.jar","filename":"EssentialsX-2.20.1.jar","primary":true}
			]}]`, base, base)
		case "/files/EssentialsX-2.20.1.jar":
			w.Write(jar)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	instanceDir := t.TempDir()
	m := NewManager()
	m.APIBase = srv.URL

	info, err := m.Install(context.Background(), instanceDir, "essentialsx", "1.21.4")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if info.Version != "2.20.1" || !info.Installed {
		t.Errorf("unexpected install info: %+v", info)
	}

	got, err := os.ReadFile(filepath.Join(instanceDir, "plugins", "EssentialsX-2.20.1.jar"))
	if err != nil {
		t.Fatalf("failed to read installed jar: %v", err)
	}
	if string(got) != string(jar) {
		t.Errorf("installed jar contents mismatch")
	}
}

func TestInstallNoCompatibleVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	m := NewManager()
	m.APIBase = srv.URL

	if _, err := m.Install(context.Background(), t.TempDir(), "ghost-plugin", "1.21.4"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestListAndRemove(t *testing.T) {
	instanceDir := t.TempDir()
	pluginsDir := filepath.Join(instanceDir, "plugins")
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		t.Fatalf("failed to create plugins dir: %v", err)
	}
	for _, name := range []string{"EssentialsX.jar", "WorldEdit.jar", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(pluginsDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to seed plugin: %v", err)
		}
	}

	m := NewManager()

	installed, err := m.List(instanceDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(installed) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(installed))
	}

	if err := m.Remove(instanceDir, "EssentialsX"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(pluginsDir, "EssentialsX.jar")); !os.IsNotExist(err) {
		t.Errorf("expected jar removed")
	}

	if err := m.Remove(instanceDir, "EssentialsX"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
	if err := m.Remove(instanceDir, "../escape"); err == nil {
		t.Errorf("expected traversal attempt to be rejected")
	}
}

func TestListMissingDir(t *testing.T) {
	m := NewManager()
	installed, err := m.List(t.TempDir())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(installed) != 0 {
		t.Errorf("expected no plugins, got %d", len(installed))
	}
}
