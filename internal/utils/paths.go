package utils

import "path/filepath"

// ResolvePath resolves p against baseDir, the directory of the file that
// named it. Absolute paths, and any path when baseDir is empty, come back
// unchanged; an empty p stays empty.
func ResolvePath(p, baseDir string) string {
	if p == "" || baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ResolvePaths applies ResolvePath to each of paths.
func ResolvePaths(paths []string, baseDir string) []string {
	if len(paths) == 0 {
		return nil
	}
	resolved := make([]string, len(paths))
	for i, p := range paths {
		resolved[i] = ResolvePath(p, baseDir)
	}
	return resolved
}
