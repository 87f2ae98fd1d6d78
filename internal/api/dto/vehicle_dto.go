package dto

import "time"

// RegisterVehicleRequest payload.
type RegisterVehicleRequest struct {
	Plate  string `json:"plate"`
	Make   string `json:"make"`
	Colour string `json:"colour"`
}

// VehicleResponse response.
type VehicleResponse struct {
	ID        string    `json:"id"`
	Plate     string    `json:"plate"`
	Make      string    `json:"make"`
	Colour    string    `json:"colour"`
	CreatedAt time.Time `json:"created_at"`
}
