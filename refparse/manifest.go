package refparse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/pelletier/go-toml/v2"
)

// BuildEntry is one member declared by the build manifest.
type BuildEntry struct {
	Path    string `toml:"path"`
	GUID    string `toml:"guid"`
	Enabled bool   `toml:"enabled"`
}

type tomlManifest struct {
	Scenes []BuildEntry `toml:"scenes"`
}

// ParseBuildManifest reads the project build manifest and returns a reference
// with local id 0 for every enabled member. Manifests whose name ends in
// ".toml" use the TOML layout; everything else is read as serialized YAML.
func ParseBuildManifest(name string, r io.Reader, resolve Resolver) ([]Ref, error) {
	var entries []BuildEntry
	var err error
	if strings.HasSuffix(strings.ToLower(name), ".toml") {
		entries, err = readTOMLManifest(r)
	} else {
		entries, err = readYAMLManifest(r)
	}
	if err != nil {
		return nil, err
	}

	var refs []Ref
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		id := asset.ID(entry.GUID)
		if !asset.IsValidID(entry.GUID) {
			resolved, ok := resolve(entry.Path)
			if !ok {
				continue
			}
			id = resolved
		}
		refs = append(refs, Ref{Target: id, Local: 0, HasLocal: true})
	}
	return refs, nil
}

func readTOMLManifest(r io.Reader) ([]BuildEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading build manifest: %w", err)
	}
	var m tomlManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding build manifest: %w", err)
	}
	return m.Scenes, nil
}

// readYAMLManifest extracts the scene list from an EditorBuildSettings-style file:
//
//	m_Scenes:
//	- enabled: 1
//	  path: Assets/Scenes/Main.unity
//	  guid: 2cda990e2423bbf4892e6590ba056729
func readYAMLManifest(r io.Reader) ([]BuildEntry, error) {
	var entries []BuildEntry
	var current *BuildEntry
	inScenes := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "m_Scenes:") {
			inScenes = true
			continue
		}
		if !inScenes {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") {
			entries = append(entries, BuildEntry{})
			current = &entries[len(entries)-1]
			trimmed = strings.TrimSpace(trimmed[2:])
		} else if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "-") {
			// Next top level key ends the list.
			if strings.HasSuffix(trimmed, ":") || strings.Contains(trimmed, ": ") {
				inScenes = false
				current = nil
				continue
			}
		}
		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "enabled":
			current.Enabled = value == "1" || strings.EqualFold(value, "true")
		case "path":
			current.Path = value
		case "guid":
			current.GUID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("reading build manifest: %w", err)
	}
	return entries, nil
}
