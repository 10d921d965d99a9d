package releases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"releasecal/internal/ics"
	appLog "releasecal/internal/log"
	"releasecal/internal/model"
	"releasecal/internal/registry"
	"releasecal/internal/telemetry"
)

// ErrFetch wraps failures to open or parse a project's calendar.
var ErrFetch = errors.New("calendar fetch failed")

// Fetcher turns the calendars of every registered project into releases.
// It keeps no state between calls; every Get goes back to the sources.
type Fetcher struct {
	registry    *registry.Registry
	opener      ics.Opener
	parse       ics.ParseFunc
	loc         *time.Location
	concurrency int
	instruments *telemetry.Instruments
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithParser replaces ics.ParseCalendars.
func WithParser(parse ics.ParseFunc) Option {
	return func(f *Fetcher) { f.parse = parse }
}

// WithLocation sets the zone timed event starts are converted into before
// their date is taken.
func WithLocation(loc *time.Location) Option {
	return func(f *Fetcher) { f.loc = loc }
}

// WithConcurrency lets up to n projects be fetched at once. Output order is
// unaffected. Values below 2 fetch sequentially.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) { f.concurrency = n }
}

// WithInstruments records metrics and spans for each project fetch.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(f *Fetcher) { f.instruments = i }
}

// NewFetcher creates a Fetcher over reg that reads sources through opener.
func NewFetcher(reg *registry.Registry, opener ics.Opener, opts ...Option) *Fetcher {
	f := &Fetcher{
		registry:    reg,
		opener:      opener,
		parse:       ics.ParseCalendars,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get returns one ProjectReleases per registered project, in registry
// order. Any open, parse or mapping failure aborts the whole call and no
// partial results are returned.
func (f *Fetcher) Get(ctx context.Context) ([]model.ProjectReleases, error) {
	projects := f.registry.Projects()
	out := make([]model.ProjectReleases, len(projects))

	if f.concurrency < 2 {
		for i, p := range projects {
			pr, err := f.fetchProject(ctx, p)
			if err != nil {
				return nil, err
			}
			out[i] = pr
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			pr, err := f.fetchProject(gctx, p)
			if err != nil {
				return err
			}
			out[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) fetchProject(ctx context.Context, p registry.Project) (pr model.ProjectReleases, err error) {
	started := time.Now()
	ctx, done := f.instruments.StartFetch(ctx, p.Name())
	defer func() {
		done(len(pr.Releases), time.Since(started).Seconds(), err)
	}()

	calendars, err := f.readCalendars(ctx, p)
	if err != nil {
		return model.ProjectReleases{}, fmt.Errorf("%w: %s (%s): %w",
			ErrFetch, p.Name(), ics.RedactURL(p.CalendarSource().String()), err)
	}

	releases := make([]model.Release, 0)
	for _, cal := range calendars {
		for _, ev := range cal.Events {
			r, err := NewRelease(p, ev, f.loc)
			if err != nil {
				return model.ProjectReleases{}, fmt.Errorf("%s: event %q: %w", p.Name(), ev.UID, err)
			}
			releases = append(releases, r)
		}
	}

	appLog.Info("calendar releases mapped", "project", p.Name(), "calendar_count", len(calendars), "release_count", len(releases))
	return model.ProjectReleases{ProjectName: p.Name(), Releases: releases}, nil
}

// readCalendars opens and parses one source. The stream is always closed;
// a close failure is logged and never replaces the parse result.
func (f *Fetcher) readCalendars(ctx context.Context, p registry.Project) ([]ics.Calendar, error) {
	src := p.CalendarSource()

	rc, err := f.opener.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			appLog.Error("calendar stream close failed", cerr, "project", p.Name(), "url", ics.RedactURL(src.String()))
		}
	}()

	return f.parse(rc)
}
