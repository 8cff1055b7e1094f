package manifest

import "path/filepath"

// Files every module directory contains besides the manifest.
const (
	// DefinitionFile declares the module type embedding one of the core bases.
	DefinitionFile = "module.go"

	// PackageFile marks the directory as a Go module.
	PackageFile = "go.mod"

	// PluginFile is an optional prebuilt Go plugin exporting the module.
	PluginFile = "module.so"
)

// RequiredFiles lists the files a module directory must contain, in the
// order they are checked.
var RequiredFiles = []string{FileName, DefinitionFile, PackageFile}

// ArchiveName is the file name of a module's preserved upload archive.
func ArchiveName(module string) string {
	return module + "_module.zip"
}

// TemplateDir returns the module's template namespace inside dir.
func TemplateDir(dir, module string) string {
	return filepath.Join(dir, "templates", module)
}
