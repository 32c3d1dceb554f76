package model

import "time"

// Team is a league team.
type Team struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Area       string `json:"area,omitempty"`
	Prefecture string `json:"prefecture,omitempty"`
}

// Player belongs to exactly one team.
type Player struct {
	ID       int64  `json:"id"`
	TeamID   int64  `json:"team_id"`
	No       int    `json:"no"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
}

// Game is a scheduled match between two teams.
type Game struct {
	ID      int64     `json:"id"`
	TeamAID int64     `json:"team_a_id"`
	TeamBID int64     `json:"team_b_id"`
	Date    time.Time `json:"date"`
}

// HasTeam reports whether team plays in the game.
func (g *Game) HasTeam(team int64) bool {
	return team != 0 && (team == g.TeamAID || team == g.TeamBID)
}

// Opponent returns the other team, or 0 if team is not in the game.
func (g *Game) Opponent(team int64) int64 {
	switch team {
	case g.TeamAID:
		return g.TeamBID
	case g.TeamBID:
		return g.TeamAID
	}
	return 0
}

// GameResult records the winner and loser of a game. At most one per game.
type GameResult struct {
	GameID   int64 `json:"game_id"`
	WinTeam  int64 `json:"win_team"`
	LoseTeam int64 `json:"lose_team"`
}
