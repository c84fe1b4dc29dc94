package models

import "time"

// User represents a row in the usuarios table.
type User struct {
	ID        int64     `json:"id"        bson:"_id"`
	Firstname string    `json:"firstname" bson:"firstname"`
	Lastname  string    `json:"lastname"  bson:"lastname"`
	Email     string    `json:"email"     bson:"email"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// UserRequest is the JSON body for POST and PUT /usuarios.
// Nil fields were omitted by the client.
type UserRequest struct {
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Email     *string `json:"email"`
}
