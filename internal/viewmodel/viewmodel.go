package viewmodel

// Lobby holds data for the room list page.
type Lobby struct {
	Title string
	Rooms []RoomCard
	Empty bool
}

// RoomCard is one room in the lobby list.
type RoomCard struct {
	ID       string
	Ruleset  string
	Status   string
	Phase    string
	HostName string
	Seats    string
	Round    string
	Joinable bool
}
