package models

// CacheStats reports the state of the in-memory QA cache.
type CacheStats struct {
	Valid    int `json:"valid"`
	Expired  int `json:"expired"`
	InFlight int `json:"in_flight"`
}

// StoreStats reports performance metrics for the persistent answer store.
type StoreStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
