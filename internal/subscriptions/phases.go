package subscriptions

import (
	"sort"
	"time"

	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

const (
	dateLayout = "2006-01-02"

	// finalPhaseExtension closes the last phase 90 days after the final
	// delivery date instead of leaving the schedule unbounded.
	finalPhaseExtension = 90 * 24 * time.Hour
)

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "date invalide (format attendu AAAA-MM-JJ)")
	}
	return parsed.UTC(), nil
}

func parseDates(values []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(values))
	for _, value := range values {
		parsed, err := parseDate(value)
		if err != nil {
			return nil, err
		}
		dates = append(dates, parsed)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func futureDates(dates []time.Time, now time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, date := range dates {
		if date.After(now) {
			out = append(out, date)
		}
	}
	return out
}

// buildPhases turns delivery dates into contiguous phases: phase i runs
// from date i to date i+1, the last phase ends 90 days after its start.
func buildPhases(priceID string, dates []time.Time) []Phase {
	phases := make([]Phase, 0, len(dates))
	for i, start := range dates {
		end := start.Add(finalPhaseExtension)
		if i+1 < len(dates) {
			end = dates[i+1]
		}
		phases = append(phases, Phase{
			PriceID:   priceID,
			Quantity:  1,
			StartDate: start,
			EndDate:   end,
		})
	}
	return phases
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// currentPhase returns the phase whose interval contains now, if any.
func currentPhase(schedule *Schedule, now time.Time) *Phase {
	for i := range schedule.Phases {
		phase := schedule.Phases[i]
		if phase.StartDate.After(now) {
			continue
		}
		if phase.EndDate.IsZero() || phase.EndDate.After(now) {
			return &schedule.Phases[i]
		}
	}
	return nil
}

// rebuildPhases assembles the schedule update: the in-progress phase is
// always preserved, then one phase per future start date. The preserved
// phase is stretched or clipped so the list stays contiguous.
func rebuildPhases(current *Phase, priceID string, futureStarts []time.Time) []Phase {
	sort.Slice(futureStarts, func(i, j int) bool { return futureStarts[i].Before(futureStarts[j]) })

	future := buildPhases(priceID, futureStarts)

	if current == nil {
		return future
	}

	preserved := *current
	if len(future) > 0 {
		preserved.EndDate = future[0].StartDate
	}
	return append([]Phase{preserved}, future...)
}
