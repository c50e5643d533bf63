// Package zones describes heating zones and where their definitions come from.
//
// A zone pairs the name it is controlled by with the relay that heats it,
// an optional valve relay and an optional switch that reports whether
// the valve actually moved. Definitions are read once at startup from
// SQLite (SQLiteRepository) or from config.yaml (StaticRepository).
package zones
