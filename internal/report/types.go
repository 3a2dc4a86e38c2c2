// Package report turns the game server's console dumps into structured
// reports and decides when each report is due.
package report

// GamesStatus holds the game counters of a status dump.
type GamesStatus struct {
	Maximum        int `json:"maximum"`
	CurrentMaximum int `json:"current_maximum"`
	Active         int `json:"active"`
	Total          int `json:"total"`
	MaximumLife    int `json:"maximum_life"`
}

type PlayersStatus struct {
	Maximum int `json:"maximum"`
	Current int `json:"current"`
}

// NetworkStatus reports the link to one backend (d2cs or d2dbs).
type NetworkStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// MemoryStatus is in megabytes.
type MemoryStatus struct {
	Name    string  `json:"name"`
	Current float64 `json:"current"`
	Maximum float64 `json:"maximum"`
}

type CPUStatus struct {
	Kernel float64 `json:"kernel"`
	User   float64 `json:"user"`
}

// ServerStatus is the parsed output of the "status" console command.
type ServerStatus struct {
	Games   GamesStatus     `json:"games"`
	Players PlayersStatus   `json:"players"`
	Network []NetworkStatus `json:"network"`
	Memory  []MemoryStatus  `json:"memory"`
	CPU     CPUStatus       `json:"cpu"`
	MOTD    string          `json:"motd"`
}

// Game is one row of the "gl" console command.
type Game struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Expansion  bool   `json:"expansion"`
	Hardcore   bool   `json:"hardcore"`
	Ladder     bool   `json:"ladder"`
	Enabled    bool   `json:"enabled"`
	Difficulty string `json:"difficulty"`
	Characters int    `json:"characters"`
	Created    string `json:"created"`
}

// Report types as they appear in the data envelope.
const (
	TypeStatus = "status"
	TypeGames  = "games"
)

// Console commands.
const (
	CommandStatus = "status"
	CommandGames  = "gl"
)
