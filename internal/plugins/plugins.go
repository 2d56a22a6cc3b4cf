// Package plugins searches the Modrinth registry and manages the jars in an
// instance's plugins directory.
package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vpastila/mineserv/internal/models"
)

const defaultModrinthAPI = "https://api.modrinth.com/v2"

// ErrPluginNotFound is returned when the registry has no matching plugin or
// no file compatible with the requested game version.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager talks to the plugin registry and the instance plugin directories.
type Manager struct {
	client *http.Client

	// APIBase is overridable for tests.
	APIBase string
}

// NewManager creates a plugin manager.
func NewManager() *Manager {
	return &Manager{
		client:  &http.Client{Timeout: 2 * time.Minute},
		APIBase: defaultModrinthAPI,
	}
}

type searchResponse struct {
	Hits []struct {
		Slug        string `json:"slug"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Author      string `json:"author"`
	} `json:"hits"`
}

// Search queries the registry for plugins compatible with the given game
// version.
func (m *Manager) Search(ctx context.Context, query, gameVersion string) ([]models.PluginInfo, error) {
	facets := fmt.Sprintf(`[["project_type:plugin"],["versions:%s"]]`, gameVersion)
	searchURL := fmt.Sprintf("%s/search?query=%s&facets=%s&limit=20",
		m.APIBase, url.QueryEscape(query), url.QueryEscape(facets))

	var result searchResponse
	if err := m.getJSON(ctx, searchURL, &result); err != nil {
		return nil, fmt.Errorf("plugin search failed: %w", err)
	}

	plugins := make([]models.PluginInfo, 0, len(result.Hits))
	for _, hit := range result.Hits {
		plugins = append(plugins, models.PluginInfo{
			Name:        hit.Slug,
			Description: hit.Description,
			Author:      hit.Author,
		})
	}
	return plugins, nil
}

type versionResponse []struct {
	VersionNumber string `json:"version_number"`
	Files         []struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Primary  bool   `json:"primary"`
	} `json:"files"`
}

// Install downloads the newest compatible release of a plugin into the
// instance's plugins directory.
func (m *Manager) Install(ctx context.Context, instanceDir, slug, gameVersion string) (models.PluginInfo, error) {
	versionsURL := fmt.Sprintf(`%s/project/%s/version?game_versions=["%s"]&loaders=["paper","spigot"]`,
		m.APIBase, url.PathEscape(slug), gameVersion)

	var versions versionResponse
	if err := m.getJSON(ctx, versionsURL, &versions); err != nil {
		return models.PluginInfo{}, fmt.Errorf("failed to list versions for %s: %w", slug, err)
	}
	if len(versions) == 0 || len(versions[0].Files) == 0 {
		return models.PluginInfo{}, fmt.Errorf("%w: %s for %s", ErrPluginNotFound, slug, gameVersion)
	}

	// Modrinth returns versions newest first; prefer the primary file.
	latest := versions[0]
	file := latest.Files[0]
	for _, f := range latest.Files {
		if f.Primary {
			file = f
			break
		}
	}

	pluginsDir := filepath.Join(instanceDir, "plugins")
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		return models.PluginInfo{}, fmt.Errorf("failed to create plugins dir: %w", err)
	}

	log.Printf("[Plugins] Installing %s %s", slug, latest.VersionNumber)
	if err := m.download(ctx, file.URL, filepath.Join(pluginsDir, file.Filename)); err != nil {
		return models.PluginInfo{}, err
	}

	return models.PluginInfo{
		Name:      slug,
		Version:   latest.VersionNumber,
		Installed: true,
	}, nil
}

// List returns the jars currently present in the instance's plugins
// directory.
func (m *Manager) List(instanceDir string) ([]models.PluginInfo, error) {
	pluginsDir := filepath.Join(instanceDir, "plugins")
	entries, err := os.ReadDir(pluginsDir)
	if os.IsNotExist(err) {
		return []models.PluginInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins dir: %w", err)
	}

	plugins := make([]models.PluginInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jar") {
			continue
		}
		plugins = append(plugins, models.PluginInfo{
			Name:      strings.TrimSuffix(entry.Name(), ".jar"),
			Installed: true,
		})
	}
	return plugins, nil
}

// Remove deletes an installed plugin jar by name.
func (m *Manager) Remove(instanceDir, name string) error {
	// The name is user input; keep it inside the plugins directory.
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid plugin name %q", name)
	}

	path := filepath.Join(instanceDir, "plugins", name+".jar")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
		}
		return fmt.Errorf("failed to remove plugin: %w", err)
	}
	return nil
}

func (m *Manager) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPluginNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m *Manager) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
