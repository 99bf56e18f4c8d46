package database

// The bookings CHECK keeps expires_at set exactly while a booking is pending.
// booking_properties records every property a booking touched and survives
// the release of its booked rooms.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS room_types (
		id INTEGER PRIMARY KEY,
		property_id INTEGER NOT NULL REFERENCES properties(id),
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		max_occupancy INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY,
		room_type_id INTEGER NOT NULL REFERENCES room_types(id),
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		checkin TEXT NOT NULL,
		checkout TEXT NOT NULL,
		num_guests INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		expires_at DATETIME,
		hold_token TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		total_amount INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK ((status = 'pending') = (expires_at IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS booked_rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id INTEGER NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		checkin TEXT NOT NULL,
		checkout TEXT NOT NULL,
		price INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS booking_properties (
		booking_id INTEGER NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		property_id INTEGER NOT NULL REFERENCES properties(id),
		PRIMARY KEY (booking_id, property_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id INTEGER NOT NULL UNIQUE REFERENCES bookings(id),
		amount INTEGER NOT NULL,
		payment_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_time DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_type TEXT NOT NULL,
		booking_id INTEGER NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		processed_at DATETIME,
		next_retry_at DATETIME
	)`,

	`CREATE INDEX IF NOT EXISTS idx_booked_rooms_room_dates ON booked_rooms(room_id, checkin, checkout)`,
	`CREATE INDEX IF NOT EXISTS idx_booked_rooms_booking ON booked_rooms(booking_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status_expires ON bookings(status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_room_types_property ON room_types(property_id)`,
	`CREATE INDEX IF NOT EXISTS idx_booking_properties_property ON booking_properties(property_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_queue_status ON notification_queue(status, next_retry_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS room_types (
		id BIGINT PRIMARY KEY,
		property_id BIGINT NOT NULL REFERENCES properties(id),
		name TEXT NOT NULL,
		price BIGINT NOT NULL,
		max_occupancy INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT PRIMARY KEY,
		room_type_id BIGINT NOT NULL REFERENCES room_types(id),
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		checkin DATE NOT NULL,
		checkout DATE NOT NULL,
		num_guests INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		expires_at TIMESTAMPTZ,
		hold_token TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		total_amount BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK ((status = 'pending') = (expires_at IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS booked_rooms (
		id BIGSERIAL PRIMARY KEY,
		booking_id BIGINT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		room_id BIGINT NOT NULL REFERENCES rooms(id),
		checkin DATE NOT NULL,
		checkout DATE NOT NULL,
		price BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS booking_properties (
		booking_id BIGINT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		property_id BIGINT NOT NULL REFERENCES properties(id),
		PRIMARY KEY (booking_id, property_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		booking_id BIGINT NOT NULL UNIQUE REFERENCES bookings(id),
		amount BIGINT NOT NULL,
		payment_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_time TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_queue (
		id BIGSERIAL PRIMARY KEY,
		task_type TEXT NOT NULL,
		booking_id BIGINT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_booked_rooms_room_dates ON booked_rooms(room_id, checkin, checkout)`,
	`CREATE INDEX IF NOT EXISTS idx_booked_rooms_booking ON booked_rooms(booking_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status_expires ON bookings(status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_room_types_property ON room_types(property_id)`,
	`CREATE INDEX IF NOT EXISTS idx_booking_properties_property ON booking_properties(property_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_queue_status ON notification_queue(status, next_retry_at)`,
}
