package model

// ChangeOp names the kind of mutation a Change describes.
type ChangeOp string

// Change operations.
const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// Change is one entry of the store's change feed.
type Change struct {
	Op      ChangeOp `json:"op"`
	GameID  int64    `json:"game_id"`
	TeamID  int64    `json:"team_id"`
	EventID int64    `json:"event_id"`
	Seq     int64    `json:"seq"`
}
