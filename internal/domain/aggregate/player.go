package aggregate

import (
	"sort"

	"github.com/okian/hoops/internal/domain/model"
)

// Participation markers.
const (
	MarkerStarter       = "S"
	MarkerParticipation = "●"
)

// PlayerLine is a player's box score row.
type PlayerLine struct {
	PlayerID  int64  `json:"player_id"`
	TeamID    int64  `json:"team_id"`
	No        int    `json:"no,omitempty"`
	Name      string `json:"name,omitempty"`
	Points    int    `json:"points"`
	Fouls     int    `json:"fouls"`
	Assists   int    `json:"assists"`
	Rebounds  int    `json:"rebounds"`
	Turnovers int    `json:"turnovers"`
	Steals    int    `json:"steals"`
	Blocks    int    `json:"blocks"`
	Marker    string `json:"marker"`
	// Known is false when the player is absent from the loaded roster.
	Known bool `json:"known"`
}

// Line folds the events of player p passing f into a box score row.
func Line(events []model.ScoreEvent, p int64, f Filter) PlayerLine {
	f.PlayerID = p
	line := PlayerLine{PlayerID: p}
	starter, participated := false, false
	for i := range events {
		e := &events[i]
		if !f.Match(e) {
			continue
		}
		if line.TeamID == 0 {
			line.TeamID = e.TeamID
		}
		switch {
		case e.Kind.IsScoring():
			line.Points += e.Point
		case e.Kind == model.KindFoul:
			line.Fouls += e.Point
		case e.Kind == model.KindAssist:
			line.Assists += e.Point
		case e.Kind == model.KindRebound:
			line.Rebounds += e.Point
		case e.Kind == model.KindTurnover:
			line.Turnovers += e.Point
		case e.Kind == model.KindSteal:
			line.Steals += e.Point
		case e.Kind == model.KindBlock:
			line.Blocks += e.Point
		case e.Kind == model.KindStarter:
			starter = true
		case e.Kind == model.KindParticipation:
			participated = true
		}
	}
	line.Marker = marker(starter, participated)
	return line
}

// Marker returns "S" if p has a starter event, "●" if p has a participation
// event, and "" otherwise.
func Marker(events []model.ScoreEvent, p int64) string {
	starter, participated := false, false
	for i := range events {
		e := &events[i]
		if e.Player() != p {
			continue
		}
		switch e.Kind {
		case model.KindStarter:
			starter = true
		case model.KindParticipation:
			participated = true
		}
	}
	return marker(starter, participated)
}

func marker(starter, participated bool) string {
	switch {
	case starter:
		return MarkerStarter
	case participated:
		return MarkerParticipation
	}
	return ""
}

// PlayerLines returns a row for every roster player of team followed by a
// row for every other player the team's events reference, ordered by id.
// Roster players keep the order given.
func PlayerLines(events []model.ScoreEvent, roster []model.Player, team int64) []PlayerLine {
	f := Filter{TeamID: team}
	lines := make([]PlayerLine, 0, len(roster))
	known := make(map[int64]struct{}, len(roster))
	for _, p := range roster {
		if p.TeamID != team {
			continue
		}
		known[p.ID] = struct{}{}
		line := Line(events, p.ID, f)
		line.TeamID = team
		line.No = p.No
		line.Name = p.Name
		line.Known = true
		lines = append(lines, line)
	}

	var unknown []int64
	seen := make(map[int64]struct{})
	for i := range events {
		e := &events[i]
		if e.TeamID != team || !e.HasPlayer() {
			continue
		}
		id := e.Player()
		if _, ok := known[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unknown = append(unknown, id)
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	for _, id := range unknown {
		lines = append(lines, Line(events, id, f))
	}
	return lines
}
