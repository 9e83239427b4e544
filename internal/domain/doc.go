// Package domain models police calls-for-service (CFS) demand data and the
// shared vocabulary of the prediction pipeline: incidents, grid cells, weekly
// time windows, observations, and the engine configuration.
//
// # Data Source
//
// Incidents originate from the LVMPD computer-aided dispatch export, delivered
// as a cleaned CSV batch (one file per calendar year). Upstream cleaning has
// already removed duplicates and normalized column names; this service consumes
// the cleaned contract only:
//
//	id,latitude,longitude,timestamp,category
//	cfs-1a2b3c4d,36.1699,-115.1398,2023-07-14T22:41:09Z,Property_Crime
//
// Timestamps are RFC 3339 and interpreted in UTC. Category is free-form
// (Violent_Crime, Property_Crime, Traffic, Miscellaneous, ...) and is used for
// reporting only, never as a model feature.
//
// # Spatial Grid
//
// Space is discretized on the H3 hexagonal grid. A cell is identified by its
// H3 index string (e.g. "8829a1d21dfffff"); the identifier doubles as the
// stable sort key because H3 strings are fixed-width at a given resolution.
// Resolution is configurable and defaults to 8 (cells ~0.74 km2, roughly a
// patrol sub-beat). A model trained at one resolution can only score cells of
// that resolution; mixing resolutions is rejected, never coerced.
//
// # Weekly Time Windows
//
// Demand is aggregated into recurring weekly windows: day-of-week crossed with
// a period of day. Days follow the Monday=0 .. Sunday=6 convention. Periods
// are closed-open hour ranges, configurable by their start hours:
//
//	Morning     [06:00, 12:00)
//	Afternoon   [12:00, 17:00)
//	Evening     [17:00, 22:00)
//	Late_Night  [22:00, 06:00)   wraps midnight; 23:59 and 01:30 share a period
//
// The 7x4 = 28 windows partition the week exactly: every instant belongs to
// one window and window boundaries never overlap. A timestamp at 21:59:59
// falls in Evening, 22:00:00 in Late_Night.
//
// # Midnight Artifact
//
// CAD exports commonly carry a cluster of records at exactly 00:00:00, an
// artifact of missing call times being zero-filled upstream. Batches are
// screened for this: when the midnight-exact count exceeds a configurable
// multiple of the mean count at the other 23 top-of-hour instants, the batch
// is flagged and the configured policy applies (drop the midnight-exact
// records, or keep them). Either way the decision is surfaced in run reports
// rather than silently absorbed into Late_Night demand.
//
// # ID Generation
//
// Incident IDs are deterministic SHA-256 short hashes of lat|lon|time|category
// with a "cfs-" prefix. Re-ingesting the same batch yields the same IDs, so
// downstream run records and reports stay comparable across replays. See
// [GenerateIncidentID].
package domain
