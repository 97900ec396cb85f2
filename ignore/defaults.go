package ignore

// DefaultIgnorePatterns are never enumerated as content. They cover the
// editor's generated folders, version control and OS clutter.
var DefaultIgnorePatterns = []string{
	// Generated by the editor
	"Library",
	"Temp",
	"Logs",
	"obj",
	"UserSettings",
	"MemoryCaptures",

	// Version control
	".git",
	".svn",
	".hg",
	".plastic",
	".collabignore",

	// IDE / Editor
	".idea",
	".vscode",
	".vs",
	"*.csproj",
	"*.sln",
	"*.suo",
	"*.swp",
	"*~",

	// OS files
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",

	// Temporary and crash files
	"*.tmp",
	"*.pidb",
	"*.booproj",
	"*.unityproj",
	"sysinfo.txt",
	"*.stackdump",

	// Index output
	"assetindex-mcp.log",
	"*.snapshot",
}

// skipDirNames are checked without locking on every directory during traversal.
var skipDirNames = map[string]bool{
	".git": true, ".svn": true, ".hg": true, ".plastic": true,
	".idea": true, ".vscode": true, ".vs": true,
	"Library": true, "Temp": true, "Logs": true, "obj": true,
	"UserSettings": true, "MemoryCaptures": true,
}

// IgnoreFileName is the per-project ignore file, in gitignore syntax.
const IgnoreFileName = ".assetignore"
