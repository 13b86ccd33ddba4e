// Package huginn talks to a Huginn status endpoint running next to a Valheim server.
package huginn

// Known job names reported by Huginn.
const (
	JobAutoUpdate = "AUTO_UPDATE"
	JobAutoBackup = "AUTO_BACKUP"
)

// Status is the document served at GET /status.
type Status struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Players    int     `json:"players"`
	MaxPlayers int     `json:"max_players"`
	Map        string  `json:"map"`
	Online     bool    `json:"online"`
	BepInEx    BepInEx `json:"bepinex"`
	Jobs       []Job   `json:"jobs"`
}

// BepInEx describes the mod loader. Mods are only meaningful when Enabled is true.
type BepInEx struct {
	Enabled bool  `json:"enabled"`
	Mods    []Mod `json:"mods"`
}

type Mod struct {
	Name     string `json:"name"` // file name, usually with a ".dll" suffix
	Location string `json:"location"`
}

// Job is a recurring server task. Schedule is a five-field unix cron expression.
type Job struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}
