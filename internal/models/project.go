package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a workspace; its id keys the chat room.
type Project struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomID is the canonical room key for the project.
func (p Project) RoomID() string {
	return p.ID.String()
}
