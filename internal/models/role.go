package models

// Role represents a row in the cargos table.
type Role struct {
	ID   int64  `json:"id"   bson:"_id"`
	Name string `json:"name" bson:"name"`
	// Usuarios is the read-only inverse side of the user/role relation.
	Usuarios []User `json:"usuarios" bson:"-"`
}

// RoleRequest is the JSON body for POST and PUT /cargos.
type RoleRequest struct {
	Name *string `json:"name"`
}
