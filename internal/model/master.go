package model

import "time"

// BusinessUnit is an organizational unit that owns goals.
type BusinessUnit struct {
	ID          string    `json:"bu_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role is a job role users hold.
type Role struct {
	ID          string    `json:"role_id"`
	Name        string    `json:"role_name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is a person who creates goals or receives KPIs and tasks.
type User struct {
	ID             string    `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	RoleID         *string   `json:"role_id"`
	BusinessUnitID *string   `json:"business_unit_id"`
	CreatedAt      time.Time `json:"created_at"`
}
