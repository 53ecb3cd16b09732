package mediatype

import "testing"

func TestForFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"mp4", "clip.mp4", "video/mp4"},
		{"upper case", "CLIP.MKV", "video/x-matroska"},
		{"avi", "a.b.avi", "video/x-msvideo"},
		{"mov", "x.mov", "video/quicktime"},
		{"webm", "x.webm", "video/webm"},
		{"flv", "x.flv", "video/x-flv"},
		{"wmv", "x.wmv", "video/x-ms-wmv"},
		{"m4v", "x.m4v", "video/x-m4v"},
		{"unknown falls back", "notes.txt", Default},
		{"no extension falls back", "README", Default},
		{"empty", "", Default},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForFilename(tt.in); got != tt.want {
				t.Errorf("ForFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	for _, name := range []string{"a.mp4", "b.AVI", "c.Mkv", "d.mov", "e.webm", "f.flv", "g.wmv", "h.m4v"} {
		if !Allowed(name) {
			t.Errorf("Allowed(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"a.txt", "mp4", "a.mp4.exe", "", "."} {
		if Allowed(name) {
			t.Errorf("Allowed(%q) = true, want false", name)
		}
	}
}

func TestExt(t *testing.T) {
	if got := Ext("Movie.Final.MP4"); got != "mp4" {
		t.Fatalf("Ext() = %q, want mp4", got)
	}
	if got := Ext("noext"); got != "" {
		t.Fatalf("Ext() = %q, want empty", got)
	}
}

func TestExtensionsSorted(t *testing.T) {
	exts := Extensions()
	want := []string{"avi", "flv", "m4v", "mkv", "mov", "mp4", "webm", "wmv"}
	if len(exts) != len(want) {
		t.Fatalf("Extensions() = %v, want %v", exts, want)
	}
	for i := range want {
		if exts[i] != want[i] {
			t.Fatalf("Extensions() = %v, want %v", exts, want)
		}
	}
}
