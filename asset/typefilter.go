package asset

import "strings"

// TypeGroup is a named set of extensions used to filter records by broad type.
type TypeGroup struct {
	Name       string
	Extensions []string
}

// TypeGroups lists the known groups. A record whose extension is in no group
// belongs to "Others".
var TypeGroups = []TypeGroup{
	{"Scene", []string{".unity"}},
	{"Prefab", []string{".prefab"}},
	{"Model", []string{".3df", ".3dm", ".3dmf", ".3dv", ".3dx", ".c5d", ".lwo", ".lws", ".ma", ".mb",
		".mesh", ".vrl", ".wrl", ".wrz", ".fbx", ".dae", ".3ds", ".dxf", ".obj", ".skp", ".max", ".blend"}},
	{"Material", []string{".mat", ".cubemap", ".physicsmaterial", ".physicsmaterial2d"}},
	{"Texture", []string{".ai", ".apng", ".png", ".bmp", ".cdr", ".dib", ".eps", ".exif", ".ico", ".icon",
		".j", ".j2c", ".j2k", ".jas", ".jiff", ".jng", ".jp2", ".jpc", ".jpe", ".jpeg", ".jpf", ".jpg", ".jpw",
		".jpx", ".jtf", ".mac", ".omf", ".qif", ".qti", ".qtif", ".tex", ".tfw", ".tga", ".tif", ".tiff", ".wmf",
		".psd", ".exr", ".rendertexture"}},
	{"Video", []string{".asf", ".asx", ".avi", ".dat", ".divx", ".dvx", ".mlv", ".m2l", ".m2t", ".m2ts",
		".m2v", ".m4e", ".m4v", ".mjp", ".mov", ".movie", ".mp21", ".mp4", ".mpe", ".mpeg", ".mpg", ".mpv2",
		".ogm", ".qt", ".rm", ".rmvb", ".wmw", ".xvid", ".colorbuffer"}},
	{"Audio", []string{".mp3", ".wav", ".ogg", ".aif", ".aiff", ".mod", ".it", ".s3m", ".xm"}},
	{"Script", []string{".cs", ".js", ".boo"}},
	{"Text", []string{".txt", ".json", ".xml", ".bytes", ".sql"}},
	{"Shader", []string{".shader", ".cginc"}},
	{"Animation", []string{".anim", ".controller", ".overridecontroller", ".mask"}},
	{"Unity Asset", []string{".asset", ".guiskin", ".flare", ".fontsettings", ".prefs"}},
}

// OthersGroup is the group name for extensions not covered by TypeGroups.
const OthersGroup = "Others"

var extensionToGroup = func() map[string]string {
	m := make(map[string]string)
	for _, g := range TypeGroups {
		for _, ext := range g.Extensions {
			m[ext] = g.Name
		}
	}
	return m
}()

// GroupOf returns the type group name for an extension (with dot).
func GroupOf(ext string) string {
	if g, ok := extensionToGroup[strings.ToLower(ext)]; ok {
		return g
	}
	return OthersGroup
}

// GroupSet is a case-insensitive set of group names.
type GroupSet map[string]struct{}

// NewGroupSet builds a set from group names.
func NewGroupSet(names []string) GroupSet {
	s := make(GroupSet, len(names))
	for _, n := range names {
		s[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return s
}

// ContainsExt reports whether ext falls into a group in the set.
func (s GroupSet) ContainsExt(ext string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[strings.ToLower(GroupOf(ext))]
	return ok
}

// KnownGroup reports whether name is a group name, Others included.
func KnownGroup(name string) bool {
	if strings.EqualFold(name, OthersGroup) {
		return true
	}
	for _, g := range TypeGroups {
		if strings.EqualFold(g.Name, name) {
			return true
		}
	}
	return false
}
