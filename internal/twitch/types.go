package twitch

import "time"

// User is a resolved Twitch account.
type User struct {
	ID          string
	Login       string
	DisplayName string
}

// Stream is a live broadcast on a watched channel.
type Stream struct {
	ID          string
	UserID      string
	UserLogin   string
	UserName    string
	GameID      string
	GameName    string
	Title       string
	ViewerCount int
	StartedAt   time.Time
}

// Category is a game or category.
type Category struct {
	ID        string
	Name      string
	BoxArtURL string
}
