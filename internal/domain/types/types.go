// Package types contains read shapes and enumerations shared across layers.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for parsing errors.
var (
	ErrInvalidCategory = errors.New("invalid ranking category")
	ErrInvalidPolicy   = errors.New("invalid games played policy")
)

// Category selects the stat a ranking is computed over.
type Category string

// Ranking categories.
const (
	CategoryPoints   Category = "points"
	CategoryAssists  Category = "assists"
	CategoryRebounds Category = "rebounds"
	CategorySteals   Category = "steals"
	CategoryBlocks   Category = "blocks"
)

// Categories lists every ranking category.
func Categories() []Category {
	return []Category{CategoryPoints, CategoryAssists, CategoryRebounds, CategorySteals, CategoryBlocks}
}

// ParseCategory validates s; empty means points.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryPoints, nil
	}
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// GamesPlayedPolicy decides how the ranking denominator is counted.
type GamesPlayedPolicy string

// Games played policies.
const (
	// PolicySumPoints sums the point field of starter and participation events.
	// Lineup events carry point 0 unless edited, so this is usually 0.
	PolicySumPoints GamesPlayedPolicy = "sum_points"
	// PolicyCountEvents counts starter and participation events.
	PolicyCountEvents GamesPlayedPolicy = "count_events"
	// PolicyDistinctGames counts distinct games with a starter or participation event.
	PolicyDistinctGames GamesPlayedPolicy = "distinct_games"
)

// ParsePolicy validates s; empty means distinct_games.
func ParsePolicy(s string) (GamesPlayedPolicy, error) {
	switch p := GamesPlayedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyDistinctGames, nil
	case PolicySumPoints, PolicyCountEvents, PolicyDistinctGames:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Entry is one row of a cross-game ranking.
type Entry struct {
	Rank        int     `json:"rank"`
	PlayerID    int64   `json:"player_id"`
	PlayerName  string  `json:"player_name"`
	TeamID      int64   `json:"team_id"`
	TeamName    string  `json:"team_name"`
	Total       int     `json:"total"`
	GamesPlayed int     `json:"games_played"`
	Average     float64 `json:"average"`
}
