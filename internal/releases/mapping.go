package releases

import (
	"errors"
	"strings"
	"time"

	"releasecal/internal/ics"
	"releasecal/internal/model"
	"releasecal/internal/registry"
)

var (
	ErrMissingSummary = errors.New("event has no summary")
	ErrMissingStart   = errors.New("event has no start date")
)

// NewRelease maps one calendar event onto a release of project. The
// project name is stripped from the front of the summary when present.
// Timed starts are moved into loc first when loc is non-nil; all-day
// dates are never shifted.
func NewRelease(project registry.Project, ev ics.Event, loc *time.Location) (model.Release, error) {
	if ev.Summary == "" {
		return model.Release{}, ErrMissingSummary
	}
	if ev.Start.IsZero() {
		return model.Release{}, ErrMissingStart
	}

	start := ev.Start
	if loc != nil && !ev.AllDay {
		start = start.In(loc)
	}

	return model.Release{
		Project: project.Name(),
		Name:    releaseName(project.Name(), ev.Summary),
		Date:    start.Format(time.DateOnly),
		Status:  model.StatusUnknown,
	}, nil
}

func releaseName(project, summary string) string {
	if rest, ok := strings.CutPrefix(summary, project); ok {
		return strings.TrimSpace(rest)
	}
	return summary
}
