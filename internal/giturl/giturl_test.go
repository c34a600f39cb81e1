package giturl

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "https", in: "https://example.com/org/repo.git", want: "https://example.com/org/repo.git"},
		{name: "ssh", in: "ssh://git@example.com/org/repo.git", want: "ssh://git@example.com/org/repo.git"},
		{name: "scp with user", in: "git@example.com:org/repo.git", want: "ssh://git@example.com/org/repo.git"},
		{name: "scp without user", in: "example.com:org/repo.git", want: "ssh://example.com/org/repo.git"},
		{name: "git protocol", in: "git://example.com/org/repo.git", want: "git://example.com/org/repo.git"},
		{name: "file", in: "file:///srv/git/repo.git", want: "file:///srv/git/repo.git"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.in, err)
			}
			if u.String() != tc.want {
				t.Fatalf("want %q, got %q", tc.want, u.String())
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "://no-scheme"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected an error for %q", in)
		}
	}
}
