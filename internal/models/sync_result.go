package models

// Per-phase count keys reported in SyncResult.Counts
const (
	CountZonesFetched       = "zonesFetched"
	CountZonesDropped       = "zonesDropped"
	CountExpansionsUpserted = "expansionsUpserted"
	CountSeasonsUpserted    = "seasonsUpserted"
	CountStaticMetaFetched  = "staticMetaFetched"
	CountIconsFetched       = "iconsFetched"
	CountRaidsUpserted      = "raidsUpserted"
	CountBossesUpserted     = "bossesUpserted"
)

// SyncResult is the report of one catalog sync run; it is logged and returned, never persisted
type SyncResult struct {
	Counts     map[string]int `json:"counts"`
	Errors     []string       `json:"errors"`
	DurationMs int64          `json:"durationMs"`
}

// NewSyncResult returns an empty result with every count key present
func NewSyncResult() *SyncResult {
	return &SyncResult{
		Counts: map[string]int{
			CountZonesFetched:       0,
			CountZonesDropped:       0,
			CountExpansionsUpserted: 0,
			CountSeasonsUpserted:    0,
			CountStaticMetaFetched:  0,
			CountIconsFetched:       0,
			CountRaidsUpserted:      0,
			CountBossesUpserted:     0,
		},
		Errors: []string{},
	}
}
