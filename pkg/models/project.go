package models

import "time"

// Project is the root persisted entity a session belongs to: the working
// directory the core was invoked against.
type Project struct {
	ID        string    `json:"id"`
	RootPath  string    `json:"rootPath"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
