package aggregate

import "github.com/okian/hoops/internal/domain/model"

// Result markers shown next to a team once a GameResult exists.
const (
	ResultWin  = "○"
	ResultLose = "●"
)

// QuarterLine is one quarter of a team's scoreboard.
type QuarterLine struct {
	Quarter     model.Quarter `json:"quarter"`
	Points      int           `json:"points"`
	Fouls       int           `json:"fouls"`
	FoulDisplay int           `json:"foul_display"`
	Timeouts    int           `json:"timeouts"`
}

// TeamSide is everything a display shows for one team.
type TeamSide struct {
	TeamID   int64         `json:"team_id"`
	Name     string        `json:"name"`
	Total    int           `json:"total"`
	Quarters []QuarterLine `json:"quarters"`
	Players  []PlayerLine  `json:"players"`
	Result   string        `json:"result,omitempty"`
}

// Snapshot is the aggregate view of a game at a point of its log.
type Snapshot struct {
	GameID int64 `json:"game_id"`
	// Seq is the highest sequence number folded into the snapshot.
	Seq        int64     `json:"seq"`
	EventCount int       `json:"event_count"`
	TeamA      TeamSide  `json:"team_a"`
	TeamB      TeamSide  `json:"team_b"`
	Fouls      []FoulRow `json:"fouls"`
}

// Total returns the score of team, or 0 if team is not in the snapshot.
func (s *Snapshot) Total(team int64) int {
	switch team {
	case s.TeamA.TeamID:
		return s.TeamA.Total
	case s.TeamB.TeamID:
		return s.TeamB.Total
	}
	return 0
}

// BoxScore folds a game's log into a Snapshot. teams and roster may be
// incomplete; missing names are left empty. result may be nil.
func BoxScore(game model.Game, teams map[int64]model.Team, roster []model.Player, events []model.ScoreEvent, result *model.GameResult) Snapshot {
	snap := Snapshot{
		GameID:     game.ID,
		EventCount: len(events),
		TeamA:      side(events, roster, teams, game.TeamAID, result),
		TeamB:      side(events, roster, teams, game.TeamBID, result),
		Fouls:      TeamFoulChart(events, game.TeamAID, game.TeamBID),
	}
	for i := range events {
		if events[i].Seq > snap.Seq {
			snap.Seq = events[i].Seq
		}
	}
	return snap
}

func side(events []model.ScoreEvent, roster []model.Player, teams map[int64]model.Team, team int64, result *model.GameResult) TeamSide {
	s := TeamSide{
		TeamID:   team,
		Name:     teams[team].Name,
		Total:    TeamTotal(events, team),
		Quarters: make([]QuarterLine, 0, len(model.PlayQuarters())),
		Players:  PlayerLines(events, roster, team),
	}
	for _, q := range model.PlayQuarters() {
		fouls := TeamFouls(events, team, q)
		s.Quarters = append(s.Quarters, QuarterLine{
			Quarter:     q,
			Points:      QuarterScore(events, team, q),
			Fouls:       fouls,
			FoulDisplay: FoulDisplay(fouls),
			Timeouts:    TeamTimeouts(events, team, q),
		})
	}
	if result != nil {
		switch team {
		case result.WinTeam:
			s.Result = ResultWin
		case result.LoseTeam:
			s.Result = ResultLose
		}
	}
	return s
}

// Winner derives the result of game from its log. ok is false on a tie.
func Winner(game model.Game, events []model.ScoreEvent) (result model.GameResult, ok bool) {
	a := TeamTotal(events, game.TeamAID)
	b := TeamTotal(events, game.TeamBID)
	switch {
	case a > b:
		return model.GameResult{GameID: game.ID, WinTeam: game.TeamAID, LoseTeam: game.TeamBID}, true
	case b > a:
		return model.GameResult{GameID: game.ID, WinTeam: game.TeamBID, LoseTeam: game.TeamAID}, true
	}
	return model.GameResult{GameID: game.ID}, false
}
