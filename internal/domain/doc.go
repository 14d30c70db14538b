// Package domain models the product announcements streamed by the weather
// data feed and the layers derived from them.
//
// # Announcements
//
// The feed delivers JSON product announcements, either one object per frame
// or an array of objects. Every announcement carries a "type":
//
//	ForecastModel  gridded model output (GFS, NAM, HRRR, ...)
//	Observation    point observations
//	Imagery        radar / satellite imagery tiles
//	Track          aviation tracks, delivered as CZML files
//	Social         geotagged social-media posts
//	KML            markup overlays
//	GeoJSON        vector overlays
//
// Forecast-model announcements additionally carry modelName, modelSource,
// location, parameter, level, forecastTime and modelTime. Times are epoch
// milliseconds on the wire.
//
// # Composite Identity
//
// A logical product is identified by type, modelName, modelSource, location,
// parameter, level, forecastTime, modelTime and name. The uuid identifies a
// delivery instance only: re-announcing a product with a new uuid replaces
// the stored copy instead of adding a second one. See [Identity].
//
// # Legends
//
// Legends are static images keyed by a parameter substring, e.g. "Temperature"
// matches the layer "GFS Temperature:sfc". See [DefaultLegends].
package domain
