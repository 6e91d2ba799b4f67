package remix

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnsureSubLayer registers assetPath (e.g. "./remix_instances.usda") in the
// subLayers list of the mod manifest at manifestPath, creating the list if
// the manifest doesn't have one. Already-registered layers are left alone.
// The manifest's mtime is bumped either way so a running renderer notices
// the change.
func EnsureSubLayer(manifestPath, assetPath string) error {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading mod manifest: %w", err)
	}

	updated, changed := insertSubLayer(string(content), assetPath)
	if changed {
		if err := os.WriteFile(manifestPath, []byte(updated), 0o644); err != nil {
			return fmt.Errorf("updating mod manifest: %w", err)
		}
	}
	return TouchLayer(manifestPath)
}

// TouchLayer bumps a layer file's modification time so a renderer watching
// it reloads.
func TouchLayer(path string) error {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touching layer: %w", err)
	}
	return nil
}

// insertSubLayer does the text edit: append to an existing subLayers list,
// or insert a new list right after the opening layer-metadata paren.
func insertSubLayer(content, assetPath string) (string, bool) {
	entry := fmt.Sprintf("        @%s@", assetPath)
	if strings.Contains(content, "@"+assetPath+"@") {
		return content, false
	}

	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if strings.TrimSpace(line) != "subLayers = [" {
			continue
		}
		// find the closing bracket and append before it
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) != "]" {
				continue
			}
			if j > i+1 {
				last := lines[j-1]
				if !strings.HasSuffix(strings.TrimRight(last, " "), ",") && strings.TrimSpace(last) != "" {
					lines[j-1] = strings.TrimRight(last, " ") + ","
				}
			}
			out := append([]string{}, lines[:j]...)
			out = append(out, entry)
			out = append(out, lines[j:]...)
			return strings.Join(out, "\n"), true
		}
		return content, false
	}

	// no subLayers list: create one after the metadata block opens
	for i, line := range lines {
		if strings.TrimSpace(line) != "(" {
			continue
		}
		out := append([]string{}, lines[:i+1]...)
		out = append(out, "    subLayers = [", entry, "    ]")
		out = append(out, lines[i+1:]...)
		return strings.Join(out, "\n"), true
	}

	return content, false
}
