package registry

import (
	"errors"
	"testing"

	"releasecal/internal/config"
)

func TestNewProject(t *testing.T) {
	tests := []struct {
		name    string
		project string
		url     string
		wantErr bool
	}{
		{name: "https", project: "Spring Data", url: "https://example.com/cal.ics"},
		{name: "file", project: "Local", url: "file:///tmp/cal.ics"},
		{name: "empty name", project: " ", url: "https://example.com/cal.ics", wantErr: true},
		{name: "malformed", project: "Bad", url: "https://exa mple.com/%zz", wantErr: true},
		{name: "relative", project: "Bad", url: "/cal.ics", wantErr: true},
		{name: "no host", project: "Bad", url: "https:///cal.ics", wantErr: true},
		{name: "ftp", project: "Bad", url: "ftp://example.com/cal.ics", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProject(tt.project, tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProject) {
					t.Fatalf("expected ErrInvalidProject, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.project {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.project)
			}
			if p.CalendarSource().String() != tt.url {
				t.Errorf("CalendarSource() = %q, want %q", p.CalendarSource(), tt.url)
			}
		})
	}
}

func TestMustProject_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for malformed compiled-in URL")
		}
	}()
	MustProject("Broken", "::not a url")
}

func TestDefault(t *testing.T) {
	r := Default()
	if r.Len() != 1 {
		t.Fatalf("expected one default project, got %d", r.Len())
	}
	if got := r.Projects()[0].Name(); got != "Spring Data" {
		t.Errorf("unexpected default project %q", got)
	}
}

func TestFromConfig(t *testing.T) {
	r, err := FromConfig([]config.ProjectConfig{
		{Name: "Spring Boot", URL: "https://example.com/boot.ics"},
		{Name: "Spring Data", URL: "https://example.com/data.ics"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	projects := r.Projects()
	if len(projects) != 2 || projects[0].Name() != "Spring Boot" || projects[1].Name() != "Spring Data" {
		t.Errorf("registry order not preserved: %+v", projects)
	}

	_, err = FromConfig([]config.ProjectConfig{
		{Name: "Spring Boot", URL: "https://example.com/boot.ics"},
		{Name: "Spring Data", URL: "gopher://example.com"},
	})
	if !errors.Is(err, ErrInvalidProject) {
		t.Fatalf("expected ErrInvalidProject, got %v", err)
	}
}

func TestFromConfig_EmptyUsesDefault(t *testing.T) {
	for _, entries := range [][]config.ProjectConfig{nil, {}} {
		r, err := FromConfig(entries)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Default().Projects()
		got := r.Projects()
		if len(got) != len(want) {
			t.Fatalf("expected %d default projects, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].Name() != want[i].Name() || got[i].CalendarSource().String() != want[i].CalendarSource().String() {
				t.Errorf("project %d = %s %s, want %s %s", i,
					got[i].Name(), got[i].CalendarSource(), want[i].Name(), want[i].CalendarSource())
			}
		}
	}
}

func TestRegistry_IsImmutable(t *testing.T) {
	r := New(MustProject("A", "https://example.com/a.ics"))

	projects := r.Projects()
	projects[0] = MustProject("B", "https://example.com/b.ics")
	src := r.Projects()[0].CalendarSource()
	src.Host = "evil.example.com"

	p := r.Projects()[0]
	if p.Name() != "A" || p.CalendarSource().Host != "example.com" {
		t.Errorf("registry was mutated through its accessors: %s %s", p.Name(), p.CalendarSource())
	}
}
