// Package downloader provisions server jars: Paper builds come from the
// PaperMC download API, Spigot builds are compiled locally with BuildTools.
// Downloads are cached per version so repeated instance creation is cheap.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vpastila/mineserv/internal/models"
)

const defaultPaperAPI = "https://api.papermc.io/v2"
const defaultBuildToolsURL = "https://hub.spigotmc.org/jenkins/job/BuildTools/lastSuccessfulBuild/artifact/target/BuildTools.jar"

// Manager downloads and caches server artifacts.
type Manager struct {
	cacheDir string
	client   *http.Client

	// PaperAPIBase and BuildToolsURL are overridable for tests.
	PaperAPIBase  string
	BuildToolsURL string
}

// NewManager creates a downloader caching artifacts under cacheDir.
func NewManager(cacheDir string) *Manager {
	return &Manager{
		cacheDir:      cacheDir,
		client:        &http.Client{Timeout: 10 * time.Minute},
		PaperAPIBase:  defaultPaperAPI,
		BuildToolsURL: defaultBuildToolsURL,
	}
}

// EnsureServerJar places a ready-to-run server.jar in the instance directory,
// downloading or building the artifact first if the cache misses.
func (m *Manager) EnsureServerJar(ctx context.Context, cfg models.InstanceConfig, instanceDir string) error {
	var cached string
	var err error

	switch cfg.ServerType {
	case models.TypePaper:
		cached, err = m.ensurePaper(ctx, cfg.MinecraftVersion)
	case models.TypeSpigot:
		cached, err = m.ensureSpigot(ctx, cfg.MinecraftVersion)
	default:
		return fmt.Errorf("unknown server type %q", cfg.ServerType)
	}
	if err != nil {
		return err
	}

	return copyFile(cached, filepath.Join(instanceDir, "server.jar"))
}

// AcceptEULA writes the eula acceptance file the server refuses to boot
// without.
func AcceptEULA(instanceDir string) error {
	path := filepath.Join(instanceDir, "eula.txt")
	return os.WriteFile(path, []byte("eula=true\n"), 0644)
}

type paperProjectResponse struct {
	Versions []string `json:"versions"`
}

// ListVersions returns the Minecraft versions the Paper project publishes,
// oldest first.
func (m *Manager) ListVersions(ctx context.Context) ([]string, error) {
	var project paperProjectResponse
	if err := m.getJSON(ctx, m.PaperAPIBase+"/projects/paper", &project); err != nil {
		return nil, fmt.Errorf("failed to list paper versions: %w", err)
	}
	return project.Versions, nil
}

type paperBuildsResponse struct {
	Builds []struct {
		Build     int `json:"build"`
		Downloads struct {
			Application struct {
				Name   string `json:"name"`
				SHA256 string `json:"sha256"`
			} `json:"application"`
		} `json:"downloads"`
	} `json:"builds"`
}

// ensurePaper returns a cached Paper jar for the version, downloading the
// latest build if necessary.
func (m *Manager) ensurePaper(ctx context.Context, version string) (string, error) {
	buildsURL := fmt.Sprintf("%s/projects/paper/versions/%s/builds", m.PaperAPIBase, version)

	var builds paperBuildsResponse
	if err := m.getJSON(ctx, buildsURL, &builds); err != nil {
		return "", fmt.Errorf("failed to list paper builds for %s: %w", version, err)
	}
	if len(builds.Builds) == 0 {
		return "", fmt.Errorf("no paper builds available for version %s", version)
	}

	latest := builds.Builds[len(builds.Builds)-1]
	cached := filepath.Join(m.cacheDir, fmt.Sprintf("paper-%s-%d.jar", version, latest.Build))
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}

	downloadURL := fmt.Sprintf("%s/projects/paper/versions/%s/builds/%d/downloads/%s",
		m.PaperAPIBase, version, latest.Build, latest.Downloads.Application.Name)

	log.Printf("[Downloader] Fetching paper %s build %d", version, latest.Build)
	if err := m.downloadFile(ctx, downloadURL, cached); err != nil {
		return "", err
	}

	if want := latest.Downloads.Application.SHA256; want != "" {
		got, err := fileSHA256(cached)
		if err != nil {
			return "", err
		}
		if got != want {
			os.Remove(cached)
			return "", fmt.Errorf("paper %s build %d checksum mismatch", version, latest.Build)
		}
	}
	return cached, nil
}

// ensureSpigot returns a cached Spigot jar for the version, running BuildTools
// to compile it if necessary. BuildTools needs a JDK and several minutes; the
// result is cached indefinitely.
func (m *Manager) ensureSpigot(ctx context.Context, version string) (string, error) {
	cached := filepath.Join(m.cacheDir, fmt.Sprintf("spigot-%s.jar", version))
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}

	workDir := filepath.Join(m.cacheDir, "buildtools")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create buildtools dir: %w", err)
	}

	buildTools := filepath.Join(workDir, "BuildTools.jar")
	if _, err := os.Stat(buildTools); err != nil {
		log.Printf("[Downloader] Fetching BuildTools")
		if err := m.downloadFile(ctx, m.BuildToolsURL, buildTools); err != nil {
			return "", err
		}
	}

	log.Printf("[Downloader] Building spigot %s (this can take several minutes)", version)
	cmd := exec.CommandContext(ctx, "java", "-jar", "BuildTools.jar", "--rev", version)
	cmd.Dir = workDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("buildtools failed for %s: %w: %s", version, err, tail(output, 512))
	}

	built := filepath.Join(workDir, fmt.Sprintf("spigot-%s.jar", version))
	if err := copyFile(built, cached); err != nil {
		return "", fmt.Errorf("buildtools produced no jar for %s: %w", version, err)
	}
	return cached, nil
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

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// downloadFile streams a URL to path via a temp file so a partial download
// never masquerades as a cached artifact.
func (m *Manager) downloadFile(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

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

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
