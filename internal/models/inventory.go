package models

type Property struct {
	ID       int64  `json:"id" yaml:"id" db:"id"`
	Name     string `json:"name" yaml:"name" db:"name"`
	IsActive bool   `json:"is_active" yaml:"is_active" db:"is_active"`
}

type RoomType struct {
	ID           int64  `json:"id" yaml:"id" db:"id"`
	PropertyID   int64  `json:"property_id" yaml:"property_id" db:"property_id"`
	Name         string `json:"name" yaml:"name" db:"name"`
	Price        int64  `json:"price" yaml:"price" db:"price"`
	MaxOccupancy int    `json:"max_occupancy" yaml:"max_occupancy" db:"max_occupancy"`
	IsActive     bool   `json:"is_active" yaml:"is_active" db:"is_active"`
}

type Room struct {
	ID         int64  `json:"id" yaml:"id" db:"id"`
	RoomTypeID int64  `json:"room_type_id" yaml:"room_type_id" db:"room_type_id"`
	Name       string `json:"name" yaml:"name" db:"name"`
	IsActive   bool   `json:"is_active" yaml:"is_active" db:"is_active"`
}

// RoomDetails joins a room with its type and property for booking validation.
type RoomDetails struct {
	RoomID         int64  `db:"room_id"`
	RoomName       string `db:"room_name"`
	RoomActive     bool   `db:"room_active"`
	RoomTypeID     int64  `db:"room_type_id"`
	RoomTypeActive bool   `db:"room_type_active"`
	Price          int64  `db:"price"`
	MaxOccupancy   int    `db:"max_occupancy"`
	PropertyID     int64  `db:"property_id"`
	PropertyActive bool   `db:"property_active"`
}

// Bookable reports whether the room, its type and its property are all active.
func (d RoomDetails) Bookable() bool {
	return d.RoomActive && d.RoomTypeActive && d.PropertyActive
}

// Inventory is the seed file layout loaded by cmd/migrate.
type Inventory struct {
	Properties []Property `yaml:"properties"`
	RoomTypes  []RoomType `yaml:"room_types"`
	Rooms      []Room     `yaml:"rooms"`
}
