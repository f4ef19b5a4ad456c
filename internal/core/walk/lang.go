package walk

import (
	"path"
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".c":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cs":    "csharp",
	".go":    "go",
	".h":     "c",
	".hpp":   "cpp",
	".java":  "java",
	".js":    "javascript",
	".jsx":   "javascript",
	".kt":    "kotlin",
	".lua":   "lua",
	".php":   "php",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".sh":    "bash",
	".sql":   "sql",
	".swift": "swift",
	".ts":    "typescript",
	".tsx":   "typescript",
	".vim":   "vim",
	".yaml":  "yaml",
	".yml":   "yaml",
}

// LanguageFor guesses the language tag sent with a document from its file
// name. Unknown extensions yield "text".
func LanguageFor(name string) string {
	base := path.Base(filepath.ToSlash(name))
	switch base {
	case "Makefile", "makefile":
		return "make"
	case "Dockerfile":
		return "dockerfile"
	}
	if lang, ok := languageByExt[strings.ToLower(path.Ext(base))]; ok {
		return lang
	}
	return "text"
}
