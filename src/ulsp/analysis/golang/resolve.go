package golang

import (
	"path/filepath"
	"strings"
)

type targetKind int

const (
	targetUnresolved targetKind = iota
	// targetSource is a package directory under a source path.
	targetSource
	// targetArchive is a prebuilt package under a library path.
	targetArchive
	// targetSDK is a standard library package; its members are not checked.
	targetSDK
)

type target struct {
	kind targetKind
	path string
}

// resolve maps an import path to the package it names. Source paths win over
// library paths, which win over the SDK.
func (p *project) resolve(importPath string) target {
	for _, sp := range p.opts.SourcePaths {
		dir := filepath.Join(sp, filepath.FromSlash(importPath))
		if len(p.packageFiles(dir)) > 0 {
			return target{kind: targetSource, path: dir}
		}
	}

	libs := append(append([]string(nil), p.opts.LibraryPaths...), p.opts.ExternalLibraryPaths...)
	for _, lp := range libs {
		archive := filepath.Join(lp, filepath.FromSlash(importPath)+_archiveExt)
		if ok, err := p.fs.FileExists(archive); err == nil && ok {
			return target{kind: targetArchive, path: archive}
		}
	}

	if p.opts.SDKPath != "" {
		dir := filepath.Join(p.opts.SDKPath, "src", filepath.FromSlash(importPath))
		if ok, err := p.fs.DirExists(dir); err == nil && ok {
			return target{kind: targetSDK, path: dir}
		}
		return target{}
	}

	// Without a configured SDK, standard library paths are trusted as-is.
	if isStandardImport(importPath) {
		return target{kind: targetSDK}
	}
	return target{}
}

// isStandardImport reports whether the first path element lacks a dot, the convention
// separating standard library packages from module paths.
func isStandardImport(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return first != "" && !strings.Contains(first, ".")
}
