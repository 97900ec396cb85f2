package asset

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const (
	idA = ID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	idB = ID("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func Test_Record_AddRef_DropsSelf(t *testing.T) {
	r := NewRecord(idA)
	r.AddRef(idA, 1, true)
	r.AddRef("", 0, false)
	if len(r.ForwardRefs) != 0 {
		t.Fatalf("expected no refs, got %v", r.ForwardRefs)
	}
}

func Test_Record_AddRef_GroupsLocalIDs(t *testing.T) {
	r := NewRecord(idA)
	r.AddRef(idB, 3, true)
	r.AddRef(idB, 1, true)
	r.AddRef(idB, 3, true)
	r.AddRef(idB, 0, false)

	got := r.LocalIDs(idB)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("expected [1 3], got %v", got)
	}
}

func Test_Record_DirtyPredicates(t *testing.T) {
	r := NewRecord(idA)
	if !r.MetadataDirty() {
		t.Error("unknown kind must be metadata dirty")
	}

	now := time.Unix(1000, 0)
	r.Kind = KindReferencable
	r.ChangeTime = now
	r.MetadataReadTime = now
	if !r.MetadataDirty() {
		t.Error("read time equal to change time must be dirty")
	}
	r.MetadataReadTime = now.Add(time.Nanosecond)
	if r.MetadataDirty() {
		t.Error("read after change must be clean")
	}

	r.WriteTime = now
	if !r.ContentDirty() {
		t.Error("never indexed content must be dirty")
	}
	r.IndexedTime = now
	if r.ContentDirty() || r.Dirty() {
		t.Error("indexed content must be clean")
	}
}

func Test_Record_SetPathAndFolders(t *testing.T) {
	r := NewRecord(idA)
	r.SetPath("Assets/Editor/Tools/Icon.PNG")
	if r.Extension != ".png" {
		t.Errorf("expected .png, got %s", r.Extension)
	}
	if !r.UnderRoot("Assets") || r.UnderRoot("Packages") {
		t.Error("UnderRoot mismatch")
	}
	if !r.InFolderNamed("Editor") {
		t.Error("expected Editor folder match")
	}
	if r.InFolderNamed("Icon.PNG") {
		t.Error("file name must not count as a folder")
	}
	if r.Name() != "Icon.PNG" {
		t.Errorf("unexpected name %s", r.Name())
	}
}

func Test_Fingerprint_SizeAndExtension(t *testing.T) {
	if Fingerprint(10, ".png") != Fingerprint(10, ".PNG") {
		t.Error("fingerprint should ignore extension case")
	}
	if Fingerprint(10, ".png") == Fingerprint(11, ".png") {
		t.Error("different sizes should not collide")
	}
	if Fingerprint(10, ".png") == Fingerprint(10, ".jpg") {
		t.Error("different extensions should not collide")
	}
}

func Test_IsValidID(t *testing.T) {
	if !IsValidID(string(idA)) {
		t.Error("expected valid id")
	}
	if IsValidID("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA") || IsValidID("abc") {
		t.Error("expected invalid id")
	}
}

func Test_Error_IsAndUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("scan: %w", NewError(ErrStreamError, "read chunk", cause).WithRecord(idA, "Assets/a.bin"))

	if !errors.Is(err, ErrStreamError) {
		t.Error("expected errors.Is to match the kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to match the cause")
	}
	var assetErr *Error
	if !errors.As(err, &assetErr) || assetErr.ID != idA {
		t.Error("expected errors.As to expose the record id")
	}
	if errors.Is(err, ErrMissingContent) {
		t.Error("kind must not match other sentinels")
	}
}
