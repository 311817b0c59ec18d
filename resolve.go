package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// cleanRemotePath strips leading/trailing slashes, returns "" for root.
func cleanRemotePath(path string) string {
	return strings.Trim(path, "/")
}

// splitRemotePath returns the path's segments, nil for the root.
func splitRemotePath(path string) []string {
	clean := cleanRemotePath(path)
	if clean == "" {
		return nil
	}

	return strings.Split(clean, "/")
}

// splitParentAndName splits a remote path into parent path and name.
// For "foo/bar/baz" returns ("foo/bar", "baz").
// For "baz" returns ("", "baz").
func splitParentAndName(path string) (string, string) {
	clean := cleanRemotePath(path)
	idx := strings.LastIndex(clean, "/")

	if idx < 0 {
		return "", clean
	}

	return clean[:idx], clean[idx+1:]
}

// resolveFolder walks the remote path segment by segment from the root,
// matching child folder names Unicode-insensitively. Works identically for
// ID-addressed and path-addressed providers because it only ever passes
// folders the adapter itself returned.
func resolveFolder(ctx context.Context, a cloud.Adapter, path string) (*cloud.Folder, error) {
	current := a.Root()

	for _, segment := range splitRemotePath(path) {
		folders, err := a.ListFolders(ctx, current)
		if err != nil {
			return nil, err
		}

		var match *cloud.Folder

		for i := range folders {
			if cloud.SameName(folders[i].Name, segment) {
				match = &folders[i]
				break
			}
		}

		if match == nil {
			return nil, fmt.Errorf("folder %q: %w", segment, cloud.ErrNotFound)
		}

		current = match
	}

	return current, nil
}

// resolveFile resolves the containing folder, then matches the final
// segment against the folder's files. Returns the file and its parent.
func resolveFile(ctx context.Context, a cloud.Adapter, path string) (*cloud.File, *cloud.Folder, error) {
	parentPath, name := splitParentAndName(path)
	if name == "" {
		return nil, nil, fmt.Errorf("file path %q: %w", path, cloud.ErrNotFound)
	}

	parent, err := resolveFolder(ctx, a, parentPath)
	if err != nil {
		return nil, nil, err
	}

	files, err := a.ListFiles(ctx, parent)
	if err != nil {
		return nil, nil, err
	}

	for i := range files {
		if cloud.SameName(files[i].Name, name) {
			return &files[i], parent, nil
		}
	}

	return nil, nil, fmt.Errorf("file %q: %w", name, cloud.ErrNotFound)
}
