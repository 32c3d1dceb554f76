package aggregate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/types"
)

// DefaultRankingLimit is the number of rows a ranking returns when no limit is given.
const DefaultRankingLimit = 30

// CategoryTotal sums the stat selected by c for player p across events.
func CategoryTotal(events []model.ScoreEvent, p int64, c types.Category) int {
	f := Filter{PlayerID: p}
	switch c {
	case types.CategoryAssists:
		return Sum(events, model.KindAssist, f)
	case types.CategoryRebounds:
		return Sum(events, model.KindRebound, f)
	case types.CategorySteals:
		return Sum(events, model.KindSteal, f)
	case types.CategoryBlocks:
		return Sum(events, model.KindBlock, f)
	default:
		return Points(events, f)
	}
}

// GamesPlayed counts the games p took part in according to policy.
func GamesPlayed(events []model.ScoreEvent, p int64, policy types.GamesPlayedPolicy) int {
	n := 0
	games := make(map[int64]struct{})
	for i := range events {
		e := &events[i]
		if !e.Kind.IsLineup() || e.Player() != p {
			continue
		}
		switch policy {
		case types.PolicySumPoints:
			n += e.Point
		case types.PolicyCountEvents:
			n++
		default:
			games[e.GameID] = struct{}{}
		}
	}
	if policy == types.PolicySumPoints || policy == types.PolicyCountEvents {
		return n
	}
	return len(games)
}

// Average divides total by games, yielding 0 when games is not positive.
func Average(total, games int) float64 {
	if games <= 0 {
		return 0
	}
	return float64(total) / float64(games)
}

// RankQuery selects and filters a ranking.
type RankQuery struct {
	Category   types.Category
	Policy     types.GamesPlayedPolicy
	TeamID     int64
	Area       string
	Prefecture string
	Search     string
	Limit      int
}

// Rank computes per-player averages for q.Category over events and returns
// the top q.Limit rows, highest average first with ties broken by player id.
// Players missing from players are not ranked.
func Rank(events []model.ScoreEvent, players []model.Player, teams []model.Team, q RankQuery) []types.Entry {
	if q.Limit <= 0 {
		q.Limit = DefaultRankingLimit
	}
	teamByID := make(map[int64]model.Team, len(teams))
	for _, t := range teams {
		teamByID[t.ID] = t
	}

	byPlayer := make(map[int64][]model.ScoreEvent)
	for i := range events {
		if events[i].HasPlayer() {
			id := events[i].Player()
			byPlayer[id] = append(byPlayer[id], events[i])
		}
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	entries := make([]types.Entry, 0, len(players))
	for _, p := range players {
		team := teamByID[p.TeamID]
		if !matchesRankQuery(p, team, q, search) {
			continue
		}
		own := byPlayer[p.ID]
		total := CategoryTotal(own, p.ID, q.Category)
		games := GamesPlayed(own, p.ID, q.Policy)
		entries = append(entries, types.Entry{
			PlayerID:    p.ID,
			PlayerName:  p.Name,
			TeamID:      p.TeamID,
			TeamName:    team.Name,
			Total:       total,
			GamesPlayed: games,
			Average:     Average(total, games),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Average != entries[j].Average {
			return entries[i].Average > entries[j].Average
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func matchesRankQuery(p model.Player, team model.Team, q RankQuery, search string) bool {
	if q.TeamID != 0 && p.TeamID != q.TeamID {
		return false
	}
	if q.Area != "" && team.Area != q.Area {
		return false
	}
	if q.Prefecture != "" && team.Prefecture != q.Prefecture {
		return false
	}
	if search == "" {
		return true
	}
	return strings.Contains(strconv.FormatInt(p.ID, 10), search) ||
		strings.Contains(strings.ToLower(p.Name), search) ||
		strings.Contains(strings.ToLower(team.Name), search)
}
