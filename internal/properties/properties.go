// Package properties reads and writes server.properties files, the flat
// key=value format the server reads its settings from.
package properties

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vpastila/mineserv/internal/models"
)

// FileName is the settings file every instance directory carries.
const FileName = "server.properties"

// Parse decodes key=value lines. Comment and blank lines are skipped; later
// duplicates win.
func Parse(data []byte) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

// Format encodes properties with sorted keys so rewrites are diffable.
func Format(props map[string]string) []byte {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("# Minecraft server properties\n")
	for _, key := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", key, props[key])
	}
	return buf.Bytes()
}

// Read loads the properties file at path. A missing file yields an empty map.
func Read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data), nil
}

// Write stores the properties file at path.
func Write(path string, props map[string]string) error {
	if err := os.WriteFile(path, Format(props), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Apply merges an instance's declared settings over the existing file
// contents. The port and player limit always come from the instance config;
// custom properties override whatever the server last wrote.
func Apply(path string, cfg models.InstanceConfig) error {
	props, err := Read(path)
	if err != nil {
		return err
	}

	props["server-port"] = strconv.Itoa(cfg.Port)
	props["max-players"] = strconv.Itoa(cfg.MaxPlayers)
	if _, ok := props["motd"]; !ok {
		props["motd"] = cfg.Name
	}
	for key, value := range cfg.Properties {
		props[key] = value
	}

	return Write(path, props)
}
