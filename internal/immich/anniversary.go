// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/immich-gate/internal/dialect"
	gatelog "github.com/ManuGH/immich-gate/internal/log"
)

// AnniversaryQuery selects assets taken around today's date in past years.
type AnniversaryQuery struct {
	DaysBack    int
	DaysForward int
	StartYear   int
	EndYear     int
	Size        int
	// Query carries extra random-search filters.
	Query map[string]any
}

func (a AnniversaryQuery) validate() error {
	switch {
	case a.DaysBack < 0 || a.DaysForward < 0:
		return fmt.Errorf("%w: negative day offsets", ErrInvalidQuery)
	case a.DaysBack+a.DaysForward > 364:
		// 365 days inclusive at most, so start and end never share a month/day
		return fmt.Errorf("%w: window longer than a year", ErrInvalidQuery)
	case a.StartYear > a.EndYear:
		return fmt.Errorf("%w: start year %d after end year %d", ErrInvalidQuery, a.StartYear, a.EndYear)
	}
	return nil
}

// monthDay is a calendar position independent of the year.
type monthDay struct {
	Month time.Month
	Day   int
}

func (md monthDay) after(o monthDay) bool {
	return md.Month > o.Month || (md.Month == o.Month && md.Day > o.Day)
}

// in anchors md in year. Feb 29 becomes Feb 28 in non-leap years.
func (md monthDay) in(year int) time.Time {
	day := md.Day
	if md.Month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, md.Month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// anniversaryWindow is the month/day range [today-back, today+forward].
type anniversaryWindow struct {
	Start, End monthDay
}

func newAnniversaryWindow(today time.Time, back, forward int) anniversaryWindow {
	s := today.AddDate(0, 0, -back)
	e := today.AddDate(0, 0, forward)
	return anniversaryWindow{
		Start: monthDay{s.Month(), s.Day()},
		End:   monthDay{e.Month(), e.Day()},
	}
}

// Bounds returns the inclusive dates of the window anchored at year. A
// window that crosses New Year ends in the following year.
func (w anniversaryWindow) Bounds(year int) (from, to time.Time) {
	endYear := year
	if w.Start.after(w.End) {
		endYear++
	}
	return w.Start.in(year), w.End.in(endYear)
}

// AnniversarySearch runs one random search per year in
// [StartYear, EndYear] restricted to the anniversary window. Failing
// years are logged and skipped; an error is returned only if all failed.
func (q *QueryClient) AnniversarySearch(ctx context.Context, aq AnniversaryQuery, now time.Time) ([]Asset, error) {
	if err := aq.validate(); err != nil {
		return nil, err
	}
	_, c, u, err := q.endpoint(dialect.OpRandomSearch, "")
	if err != nil {
		return nil, err
	}

	local := now.In(q.opts.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, q.opts.Location)
	w := newAnniversaryWindow(today, aq.DaysBack, aq.DaysForward)

	var (
		out  []Asset
		errs []error
	)
	for year := aq.StartYear; year <= aq.EndYear; year++ {
		from, to := w.Bounds(year)
		body := randomBody(aq.Size, aq.Query)
		body["size"] = sizeOrDefault(aq.Size)
		body["takenAfter"] = from.Format(time.DateOnly) + "T00:00:00.000Z"
		body["takenBefore"] = to.Format(time.DateOnly) + "T23:59:59.999Z"

		assets, err := q.randomSearch(ctx, c, u, body)
		if err != nil {
			q.logger.Warn().Err(err).
				Str(gatelog.FieldEvent, "immich.anniversary_year_failed").
				Str("year", strconv.Itoa(year)).
				Msg("anniversary search failed for year, skipping")
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
			continue
		}
		out = append(out, assets...)
	}
	if len(errs) == aq.EndYear-aq.StartYear+1 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
