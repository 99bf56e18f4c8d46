package database

import (
	"context"
	"fmt"

	"hotelbook/internal/models"

	"github.com/jmoiron/sqlx"
)

// UpsertInventory loads properties, room types and rooms from the seed file.
// Existing rows with the same id are overwritten.
func (db *DB) UpsertInventory(ctx context.Context, inv models.Inventory) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, p := range inv.Properties {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO properties (id, name, is_active)
				VALUES (:id, :name, :is_active)
				ON CONFLICT (id) DO UPDATE SET name = excluded.name, is_active = excluded.is_active`, p)
			if err != nil {
				return fmt.Errorf("failed to upsert property %d: %w", p.ID, err)
			}
		}
		for _, rt := range inv.RoomTypes {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO room_types (id, property_id, name, price, max_occupancy, is_active)
				VALUES (:id, :property_id, :name, :price, :max_occupancy, :is_active)
				ON CONFLICT (id) DO UPDATE SET property_id = excluded.property_id, name = excluded.name,
					price = excluded.price, max_occupancy = excluded.max_occupancy, is_active = excluded.is_active`, rt)
			if err != nil {
				return fmt.Errorf("failed to upsert room type %d: %w", rt.ID, err)
			}
		}
		for _, r := range inv.Rooms {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO rooms (id, room_type_id, name, is_active)
				VALUES (:id, :room_type_id, :name, :is_active)
				ON CONFLICT (id) DO UPDATE SET room_type_id = excluded.room_type_id, name = excluded.name,
					is_active = excluded.is_active`, r)
			if err != nil {
				return fmt.Errorf("failed to upsert room %d: %w", r.ID, err)
			}
		}
		return nil
	})
}

// GetRoomDetails returns the requested rooms joined with type and property,
// ordered by room id. Unknown ids are silently absent from the result.
func (db *DB) GetRoomDetails(ctx context.Context, roomIDs []int64) ([]models.RoomDetails, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT r.id AS room_id, r.name AS room_name, r.is_active AS room_active,
			rt.id AS room_type_id, rt.is_active AS room_type_active, rt.price, rt.max_occupancy,
			p.id AS property_id, p.is_active AS property_active
		FROM rooms r
		JOIN room_types rt ON rt.id = r.room_type_id
		JOIN properties p ON p.id = rt.property_id
		WHERE r.id IN (?)
		ORDER BY r.id`, roomIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build room details query: %w", err)
	}

	var details []models.RoomDetails
	if err := db.SelectContext(ctx, &details, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get room details: %w", err)
	}
	return details, nil
}

// GetPropertyRoomIDs lists active rooms of a property.
func (db *DB) GetPropertyRoomIDs(ctx context.Context, propertyID int64) ([]int64, error) {
	var ids []int64
	err := db.SelectContext(ctx, &ids, db.Rebind(`SELECT r.id FROM rooms r
		JOIN room_types rt ON rt.id = r.room_type_id
		WHERE rt.property_id = ? AND r.is_active = ? AND rt.is_active = ?
		ORDER BY r.id`), propertyID, true, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get property rooms: %w", err)
	}
	return ids, nil
}
