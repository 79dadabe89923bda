package model

import "time"

// Geolocation is the coarse location attached to a login session.
type Geolocation struct {
	City      string  `bson:"city" json:"city"`
	Country   string  `bson:"country" json:"country"`
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// LoginSession is the unit record of the simulator. Sessions are created in
// bulk during a generation run, persisted immediately, and never updated;
// analysis happens purely through read-side aggregation.
type LoginSession struct {
	SessionID         string      `bson:"session_id" json:"session_id"`
	UserID            string      `bson:"user_id" json:"user_id"`
	Timestamp         time.Time   `bson:"timestamp" json:"timestamp"`
	IPAddress         string      `bson:"ip_address" json:"ip_address"`
	UserAgent         string      `bson:"user_agent" json:"user_agent"`
	Geolocation       Geolocation `bson:"geolocation" json:"geolocation"`
	DeviceFingerprint string      `bson:"device_fingerprint" json:"device_fingerprint"`
	DurationSeconds   int         `bson:"duration_seconds" json:"duration_seconds"`
	ActionCount       int         `bson:"action_count" json:"action_count"`
	HighVelocity      bool        `bson:"high_velocity" json:"high_velocity"`
	RiskScore         float64     `bson:"risk_score" json:"risk_score"`
}
