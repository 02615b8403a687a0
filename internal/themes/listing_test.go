package themes

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

var ignoreUpdated = cmpopts.IgnoreFields(File{}, "Updated")

func TestPages(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "site-a",
		root+"/top.txt",
		root+"/current_theme/index.html",
		root+"/theme1/",
		root+"/theme2/css/a.css",
		root+"/theme2/index.html",
		"elsewhere/theme9/x.html",
	)
	got, err := f.svc.Pages(context.Background(), "site-a")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if diff := cmp.Diff([]string{"current_theme", "theme1", "theme2"}, got); diff != "" {
		t.Errorf("pages (-want +got):\n%s", diff)
	}

	empty, err := f.svc.Pages(context.Background(), "unknown")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Pages(unknown) = %#v, %v; want empty list", empty, err)
	}
}

func TestFolder(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PublicBaseURL = "https://cdn.example.com/" })
	f.seed(t, "site-a",
		root+"/theme1/",
		root+"/theme1/index.html",
		root+"/theme1/img/logo.png",
		root+"/theme1/img/icons/x.svg",
		root+"/theme10/other.html",
	)
	got, err := f.svc.Folder(context.Background(), "site-a", "theme1")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	want := FolderListing{
		Files: []File{{
			Name:        "index.html",
			URL:         "https://cdn.example.com/site-a/" + root + "/theme1/index.html",
			Size:        int64(len("body of " + root + "/theme1/index.html")),
			ContentType: "text/html",
		}},
		Folders: []string{"img"},
	}
	if diff := cmp.Diff(want, got, ignoreUpdated); diff != "" {
		t.Errorf("listing (-want +got):\n%s", diff)
	}

	missing, err := f.svc.Folder(context.Background(), "site-a", "nope")
	if err != nil {
		t.Fatalf("Folder(nope): %v", err)
	}
	if diff := cmp.Diff(FolderListing{Files: []File{}, Folders: []string{}}, missing); diff != "" {
		t.Errorf("missing folder (-want +got):\n%s", diff)
	}

	if _, err := f.svc.Folder(context.Background(), "site-a", "../x"); !xerrors.Is(err, xerrors.KindInvalid) {
		t.Errorf("Folder(../x) err = %v, want invalid", err)
	}
}

func TestFolder_StatsMissingContentTypes(t *testing.T) {
	fs := &faultyStore{MemoryStore: objstore.NewMemoryStore(), noTypes: true}
	f := newFixture(t, func(o *Options) { o.Store = fs })
	f.mem = fs.MemoryStore
	f.seed(t, "b", root+"/t/index.html", root+"/t/a.txt")

	got, err := f.svc.Folder(context.Background(), "b", "t")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	types := map[string]string{}
	for _, file := range got.Files {
		types[file.Name] = file.ContentType
	}
	want := map[string]string{"index.html": "text/html", "a.txt": "text/plain"}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("content types (-want +got):\n%s", diff)
	}
}

func TestMediaAndList(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b",
		root+"/readme.txt",
		root+"/theme1/index.html",
		root+"/theme1/css/a.css",
		"other/file.txt",
	)
	ctx := context.Background()

	media, err := f.svc.Media(ctx, "b")
	if err != nil {
		t.Fatalf("Media: %v", err)
	}
	names := func(files []File) []string {
		out := []string{}
		for _, file := range files {
			out = append(out, file.Name)
		}
		return out
	}
	wantMedia := []string{root + "/readme.txt", root + "/theme1/css/a.css", root + "/theme1/index.html"}
	if diff := cmp.Diff(wantMedia, names(media)); diff != "" {
		t.Errorf("media (-want +got):\n%s", diff)
	}

	top, err := f.svc.List(ctx, "b", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{root + "/readme.txt"}, names(top)); diff != "" {
		t.Errorf("root listing (-want +got):\n%s", diff)
	}

	nested, err := f.svc.List(ctx, "b", root+"/theme1/")
	if err != nil {
		t.Fatalf("List(theme1): %v", err)
	}
	if diff := cmp.Diff([]string{root + "/theme1/index.html"}, names(nested)); diff != "" {
		t.Errorf("theme1 listing (-want +got):\n%s", diff)
	}

	if _, err := f.svc.List(ctx, "b", root+"/../secrets"); !xerrors.Is(err, xerrors.KindInvalid) {
		t.Errorf("List with dot segments err = %v, want invalid", err)
	}
}
