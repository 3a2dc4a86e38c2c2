package report

import "time"

// Schedule tracks two independent report cadences. A zero period disables
// the gauge. A fired gauge advances whether or not the report succeeded.
// It is owned by a single goroutine.
type Schedule struct {
	gamesEvery, statusEvery time.Duration
	lastGames, lastStatus   time.Time
}

func NewSchedule(games, status time.Duration, start time.Time) *Schedule {
	return &Schedule{
		gamesEvery:  games,
		statusEvery: status,
		lastGames:   start,
		lastStatus:  start,
	}
}

func (s *Schedule) DueGames(now time.Time) bool {
	return due(&s.lastGames, s.gamesEvery, now)
}

func (s *Schedule) DueStatus(now time.Time) bool {
	return due(&s.lastStatus, s.statusEvery, now)
}

func due(last *time.Time, every time.Duration, now time.Time) bool {
	if every <= 0 || now.Sub(*last) < every {
		return false
	}
	*last = now
	return true
}
