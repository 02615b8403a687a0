package pathutil

import "testing"

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"theme_manager_Store/theme2/index.html", false},
		{"theme_manager_Store/../secrets", true},
		{"./a", true},
		{"a/b.c/..d", false},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.path); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSafeSegment(t *testing.T) {
	tests := []struct {
		seg  string
		want bool
	}{
		{"theme2", true},
		{"my theme (v2)", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
		{"tab\there", false},
		{"..hidden", true},
	}
	for _, tt := range tests {
		if got := SafeSegment(tt.seg); got != tt.want {
			t.Errorf("SafeSegment(%q) = %v, want %v", tt.seg, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join(true, "theme_manager_Store", "theme2"); got != "theme_manager_Store/theme2/" {
		t.Errorf("Join dir = %q", got)
	}
	if got := Join(false, "root/", "", "/f", "a.css"); got != "root/f/a.css" {
		t.Errorf("Join = %q", got)
	}
	if got := Join(true); got != "" {
		t.Errorf("Join() = %q", got)
	}
}

func TestBaseAndSegment(t *testing.T) {
	if got := Base("theme_manager_Store/theme2/css/site.css"); got != "site.css" {
		t.Errorf("Base = %q", got)
	}
	if got := Base("theme_manager_Store/theme2/"); got != "" {
		t.Errorf("Base of folder = %q", got)
	}
	if got := Segment("theme_manager_Store/theme2/index.html", 1); got != "theme2" {
		t.Errorf("Segment = %q", got)
	}
	if got := Segment("a", 3); got != "" {
		t.Errorf("Segment out of range = %q", got)
	}
}
