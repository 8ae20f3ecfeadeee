package starlarkfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// globBuiltin implements glob(include, exclude=[], exclude_directories=True)
// for REMAKEFILEs: it returns a sorted list of paths (relative to the
// build file's directory) matching at least one include pattern and no
// exclude pattern. A recursive "**" pattern descends the whole tree;
// there is no package-boundary concept to stop it at.
func globBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	reg, err := getRegistry(thread)
	if err != nil {
		return nil, err
	}

	var (
		include, exclude *starlark.List
		excludeDirs      = starlark.Bool(true)
		allowEmpty       = starlark.Bool(true)
	)
	if err := starlark.UnpackArgs("glob", args, kwargs,
		"include", &include,
		"exclude?", &exclude,
		"exclude_directories?", &excludeDirs,
		"allow_empty?", &allowEmpty,
	); err != nil {
		return nil, err
	}

	includePatterns, err := listToStrings(include, "glob include")
	if err != nil {
		return nil, err
	}
	excludePatterns, err := listToStrings(exclude, "glob exclude")
	if err != nil {
		return nil, err
	}

	matches, err := executeGlob(reg.Cwd, includePatterns, excludePatterns, !bool(excludeDirs))
	if err != nil {
		return nil, err
	}
	if !bool(allowEmpty) && len(matches) == 0 {
		return nil, fmt.Errorf("glob pattern(s) %v matched no files", includePatterns)
	}
	sort.Strings(matches)

	values := make([]starlark.Value, len(matches))
	for i, m := range matches {
		values[i] = starlark.String(m)
	}
	return starlark.NewList(values), nil
}

func executeGlob(baseDir string, include, exclude []string, includeDirs bool) ([]string, error) {
	matches := make(map[string]struct{})
	for _, pattern := range include {
		if err := validateGlobPattern(pattern); err != nil {
			return nil, err
		}
		found, err := matchPattern(baseDir, pattern, includeDirs)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			matches[f] = struct{}{}
		}
	}
	for _, pattern := range exclude {
		if err := validateGlobPattern(pattern); err != nil {
			return nil, err
		}
		found, err := matchPattern(baseDir, pattern, includeDirs)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			delete(matches, f)
		}
	}
	result := make([]string, 0, len(matches))
	for m := range matches {
		result = append(result, m)
	}
	return result, nil
}

func validateGlobPattern(pattern string) error {
	if strings.Contains(pattern, "?") {
		return fmt.Errorf("glob pattern %q contains forbidden '?' wildcard", pattern)
	}
	if strings.Contains(pattern, "..") {
		return fmt.Errorf("glob pattern %q contains forbidden '..' reference", pattern)
	}
	if strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("glob pattern %q cannot be absolute", pattern)
	}
	return nil
}

func matchPattern(baseDir, pattern string, includeDirs bool) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return matchRecursivePattern(baseDir, pattern, includeDirs)
	}

	fullPattern := filepath.Join(baseDir, pattern)
	absMatches, err := filepath.Glob(fullPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	var result []string
	for _, abs := range absMatches {
		rel, err := filepath.Rel(baseDir, abs)
		if err != nil || rel == "." || rel == "" {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if info.IsDir() && !includeDirs {
			continue
		}
		result = append(result, rel)
	}
	return result, nil
}

func matchRecursivePattern(baseDir, pattern string, includeDirs bool) ([]string, error) {
	var result []string

	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := ""
	if len(parts) > 1 {
		suffix = strings.TrimPrefix(parts[1], "/")
	}

	startDir := baseDir
	if prefix != "" {
		startDir = filepath.Join(baseDir, prefix)
	}

	err := filepath.Walk(startDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil || rel == "." {
			return nil
		}
		if info.IsDir() && !includeDirs {
			return nil
		}
		if suffix != "" {
			matched, err := filepath.Match(suffix, filepath.Base(path))
			if err != nil || !matched {
				return nil
			}
		}
		result = append(result, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func listToStrings(list *starlark.List, context string) ([]string, error) {
	if list == nil {
		return nil, nil
	}
	result := make([]string, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s element %d is not a string", context, i)
		}
		result[i] = s
	}
	return result, nil
}
