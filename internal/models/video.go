package models

import "time"

// Video is a stored upload. It is derived from the video directory and never persisted
// separately: the stored filename (ID + lowercased extension) is its only identity on disk.
type Video struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
