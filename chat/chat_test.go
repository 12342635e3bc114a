package chat

import "testing"

func TestHasSpecialRole(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"@admin", true},
		{"+voiced", true},
		{"~owner", true},
		{"&protected", true},
		{"%halfop", true},
		{"user1", false},
		{"us@er", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasSpecialRole(tt.name); got != tt.want {
			t.Errorf("HasSpecialRole(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNamesAccessors(t *testing.T) {
	n := Names{Params: []string{"bot", "=", "#mod", "@admin user1 user2"}}
	ch, ok := n.Channel()
	if !ok || ch != "#mod" {
		t.Errorf("Channel() = %q, %v", ch, ok)
	}
	list, ok := n.List()
	if !ok || list != "@admin user1 user2" {
		t.Errorf("List() = %q, %v", list, ok)
	}

	short := Names{Params: []string{"bot", "="}}
	if _, ok := short.Channel(); ok {
		t.Error("expected missing channel")
	}
	if _, ok := short.List(); ok {
		t.Error("expected missing names")
	}
}

func TestNormalizeChannel(t *testing.T) {
	tests := map[string]string{
		"mod":    "#mod",
		"#mod":   "#mod",
		"&local": "&local",
		"":       "",
	}
	for in, want := range tests {
		if got := NormalizeChannel(in); got != want {
			t.Errorf("NormalizeChannel(%q) = %q, want %q", in, got, want)
		}
	}
	if !SameChannel("#Mod", "#mod") {
		t.Error("SameChannel should ignore case")
	}
}
