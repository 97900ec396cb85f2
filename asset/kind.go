package asset

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Kind classifies how a record's content is parsed for references.
type Kind int

const (
	KindUnknown Kind = iota
	KindFolder
	KindCode
	KindScene
	KindReferencable
	KindBinary
	KindModel
	KindTerrain
	KindNonReadable
)

var kindNames = [...]string{
	KindUnknown:      "Unknown",
	KindFolder:       "Folder",
	KindCode:         "Code",
	KindScene:        "Scene",
	KindReferencable: "Referencable",
	KindBinary:       "Binary",
	KindModel:        "Model",
	KindTerrain:      "Terrain",
	KindNonReadable:  "NonReadable",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindUnknown.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(k)
		}
	}
	return KindUnknown
}

// ExtensionToKind maps lower case extensions (with dot) to their base kind.
var ExtensionToKind = map[string]Kind{
	// Code
	".cs": KindCode, ".js": KindCode, ".boo": KindCode, ".h": KindCode,
	".java": KindCode, ".cpp": KindCode, ".m": KindCode, ".mm": KindCode,
	// Serialized text assets
	".anim": KindReferencable, ".controller": KindReferencable, ".mat": KindReferencable,
	".guiskin": KindReferencable, ".prefab": KindReferencable, ".overridecontroller": KindReferencable,
	".mask": KindReferencable, ".rendertexture": KindReferencable, ".cubemap": KindReferencable,
	".flare": KindReferencable, ".physicsmaterial": KindReferencable, ".fontsettings": KindReferencable,
	".asset": KindReferencable, ".prefs": KindReferencable, ".spriteatlas": KindReferencable,
	// Scenes
	".unity": KindScene,
	// Models
	".fbx": KindModel,
}

// needsHeaderCheck lists extensions that may be serialized either as text or binary.
var needsHeaderCheck = map[string]bool{
	".asset":       true,
	".unity":       true,
	".spriteatlas": true,
}

// GuessKind classifies a path. header is called at most once, only for
// extensions that can be stored in either text or binary form; a header error
// is returned as-is so the caller can decide how to treat unreadable content.
func GuessKind(p string, isDir bool, header func() ([]byte, error)) (Kind, error) {
	if isDir {
		return KindFolder, nil
	}
	ext := strings.ToLower(filepath.Ext(p))
	kind, ok := ExtensionToKind[ext]
	if !ok {
		return KindNonReadable, nil
	}
	if needsHeaderCheck[ext] && header != nil {
		data, err := header()
		if err != nil {
			return KindUnknown, err
		}
		if !IsYAMLHeader(data) {
			return KindBinary, nil
		}
	}
	return kind, nil
}

// Parseable reports whether the kind's content is scanned for references.
func (k Kind) Parseable() bool {
	switch k {
	case KindFolder, KindScene, KindReferencable, KindBinary, KindModel, KindTerrain:
		return true
	}
	return false
}
