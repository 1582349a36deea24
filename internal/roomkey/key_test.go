package roomkey

import "testing"

func TestIsPattern(t *testing.T) {
	cases := map[string]bool{
		"room1": false,
		"p:*":   true,
		"*":     true,
		"a*b*c": true,
	}
	for name, want := range cases {
		if got := IsPattern(name); got != want {
			t.Errorf("IsPattern(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestBuild(t *testing.T) {
	tr := Build("room", "lobby")
	if tr.Hash != "room:lobby:hash" {
		t.Errorf("Hash = %q", tr.Hash)
	}
	if tr.List != "room:lobby:list" {
		t.Errorf("List = %q", tr.List)
	}
	if tr.Channel != "room:lobby:channel" {
		t.Errorf("Channel = %q", tr.Channel)
	}
}

func TestBuild_DefaultPrefix(t *testing.T) {
	tr := Build("", "lobby")
	if tr.Hash != DefaultPrefix+":lobby:hash" {
		t.Errorf("Hash = %q", tr.Hash)
	}
}

func TestBuild_PreservesWildcard(t *testing.T) {
	tr := Build("room", "p:*")
	if tr.Hash != "room:p:*:hash" {
		t.Errorf("Hash = %q", tr.Hash)
	}
}
