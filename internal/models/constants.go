package models

import "time"

const (
	// DefaultHoldDuration is how long a pending booking keeps its rooms.
	DefaultHoldDuration = 15 * time.Minute

	// DefaultSweepInterval is the expiry sweeper tick.
	DefaultSweepInterval = 30 * time.Second

	// DefaultSweepBatch caps bookings expired per sweep pass.
	DefaultSweepBatch = 100

	// WorkerQueueSize is the in-memory notification queue capacity.
	WorkerQueueSize = 128

	// DefaultBookingRateLimit is create attempts per user per window.
	DefaultBookingRateLimit  = 10
	DefaultBookingRateWindow = time.Minute
)
