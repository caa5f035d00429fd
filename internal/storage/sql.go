package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (run_id,
                      start_time,
                      device_type,
                      device_id,
                      tuner,
                      config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    run_id,
    start_time, 
    device_type, 
    device_id, 
    tuner,
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    run_id,
    start_time, 
    device_type, 
    device_id, 
    tuner,
    config 
FROM sessions
ORDER BY start_time, id`

	updateSessionTunerSQL = `
UPDATE sessions
SET tuner = ?
WHERE id = ?`

	insertSweepSQL = `
INSERT INTO sweeps (session_id, timestamp)
VALUES (?, ?)`

	insertBinsSQL = `
INSERT INTO bins (sweep_id, frequency, power)
VALUES `

	insertLocationSQL = `
INSERT OR REPLACE INTO locations (session_id,
                                  timestamp,
                                  fix_time,
                                  latitude,
                                  longitude,
                                  altitude)
VALUES (?, ?, ?, ?, ?, ?)`

	selectFilterValuesSQL = `
SELECT 
    MIN(b.frequency), 
    MAX(b.frequency), 
    MIN(s.timestamp), 
    MAX(s.timestamp),
    COUNT(DISTINCT s.id)
FROM sweeps s
    JOIN bins b ON b.sweep_id = s.id
WHERE 
    s.session_id = ?`

	selectBinsSQL = `
SELECT 
    s.id,
    s.timestamp,
    b.frequency,
    b.power,
    l.fix_time,
    l.latitude,
    l.longitude,
    l.altitude
FROM sweeps s
    JOIN bins b ON b.sweep_id = s.id
    LEFT JOIN locations l ON l.session_id = s.session_id AND l.timestamp = s.timestamp
WHERE 
    s.session_id = ?
    AND s.timestamp BETWEEN ? AND ?
    AND b.frequency BETWEEN ? AND ?
ORDER BY s.timestamp, s.id, b.frequency`

	// created on close, after the bulk of inserts
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_bins_sweep_frequency ON bins (sweep_id, frequency);`

	// rows per batch insert, three parameters each
	insertBatchSize = 500
)

//go:embed schema.sql
var initSchemaSQL string
