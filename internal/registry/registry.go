package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"releasecal/internal/config"
)

// ErrInvalidProject is wrapped by every project construction failure.
var ErrInvalidProject = errors.New("invalid project")

// Project is a tracked project and the calendar that publishes its releases.
type Project struct {
	name   string
	source *url.URL
}

// Name returns the project name.
func (p Project) Name() string { return p.name }

// CalendarSource returns a copy of the calendar URL.
func (p Project) CalendarSource() *url.URL {
	u := *p.source
	return &u
}

// NewProject validates rawURL and builds a Project. The URL must be
// absolute with an http, https or file scheme.
func NewProject(name, rawURL string) (Project, error) {
	if strings.TrimSpace(name) == "" {
		return Project{}, fmt.Errorf("%w: empty name", ErrInvalidProject)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Project{}, fmt.Errorf("%w: %s: %w", ErrInvalidProject, name, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return Project{}, fmt.Errorf("%w: %s: missing host", ErrInvalidProject, name)
		}
	case "file":
		if u.Path == "" {
			return Project{}, fmt.Errorf("%w: %s: missing path", ErrInvalidProject, name)
		}
	default:
		return Project{}, fmt.Errorf("%w: %s: unsupported scheme %q", ErrInvalidProject, name, u.Scheme)
	}

	return Project{name: name, source: u}, nil
}

// MustProject is NewProject for compiled-in entries; it panics on error.
func MustProject(name, rawURL string) Project {
	p, err := NewProject(name, rawURL)
	if err != nil {
		panic(err)
	}
	return p
}

// Registry is the ordered, immutable list of tracked projects.
type Registry struct {
	projects []Project
}

// New builds a registry preserving the given order.
func New(projects ...Project) *Registry {
	return &Registry{projects: append([]Project(nil), projects...)}
}

// Default returns the compiled-in registry.
func Default() *Registry {
	defaults := config.DefaultProjects()
	projects := make([]Project, 0, len(defaults))
	for _, pc := range defaults {
		projects = append(projects, MustProject(pc.Name, pc.URL))
	}
	return New(projects...)
}

// FromConfig builds a registry from configured projects, failing on the
// first invalid entry. An empty list yields the compiled-in registry.
func FromConfig(entries []config.ProjectConfig) (*Registry, error) {
	if len(entries) == 0 {
		return Default(), nil
	}
	projects := make([]Project, 0, len(entries))
	for i, pc := range entries {
		p, err := NewProject(pc.Name, pc.URL)
		if err != nil {
			return nil, fmt.Errorf("projects[%d]: %w", i, err)
		}
		projects = append(projects, p)
	}
	return New(projects...), nil
}

// Projects returns the projects in registry order. The slice is a copy.
func (r *Registry) Projects() []Project {
	return append([]Project(nil), r.projects...)
}

// Len returns the number of tracked projects.
func (r *Registry) Len() int { return len(r.projects) }
