package catalog

import (
	"strings"

	"github.com/raid-tracker/internal/models"
)

// MatchTier names the rule that paired a zone or name with an upstream record
type MatchTier string

const (
	TierNone      MatchTier = "none"
	TierSlug      MatchTier = "slug"
	TierName      MatchTier = "name"
	TierSubstring MatchTier = "substring"

	TierMythicPrefix MatchTier = "mythic-prefix"
	TierCommaPrefix  MatchTier = "comma-prefix"
	TierFirstWord    MatchTier = "first-word"
)

// minFirstWordLen is the shortest first word allowed for the last icon tier
const minFirstWordLen = 4

// MatchRaidMeta pairs a combat-log zone name with static raid metadata.
// Tiers are tried in order (slug, case-insensitive name, bidirectional
// substring) and the first tier with a hit wins; within a tier the first
// candidate in input order wins.
func MatchRaidMeta(zoneName string, metas []models.RaidStaticMeta) (*models.RaidStaticMeta, MatchTier) {
	if zoneName == "" || len(metas) == 0 {
		return nil, TierNone
	}

	slug := Slugify(zoneName)
	lower := strings.ToLower(zoneName)

	for i := range metas {
		metaSlug := strings.ToLower(metas[i].Slug)
		if metaSlug != "" && (metaSlug == slug || metaSlug == lower) {
			return &metas[i], TierSlug
		}
	}

	for i := range metas {
		if strings.EqualFold(metas[i].Name, zoneName) {
			return &metas[i], TierName
		}
	}

	for i := range metas {
		metaName := strings.ToLower(metas[i].Name)
		if metaName == "" {
			continue
		}
		if strings.Contains(metaName, lower) || strings.Contains(lower, metaName) {
			return &metas[i], TierSubstring
		}
	}

	return nil, TierNone
}

// MatchAchievement finds the achievement whose icon best represents name:
// (a) exactly "Mythic: <name>", (b) any achievement containing name,
// (c) the text before the first comma, (d) the first word when longer than
// three characters. The first tier with a hit wins.
func MatchAchievement(name string, index []models.AchievementIndexEntry) (*models.AchievementIndexEntry, MatchTier) {
	name = strings.TrimSpace(name)
	if name == "" || len(index) == 0 {
		return nil, TierNone
	}

	mythic := "mythic: " + strings.ToLower(name)
	for i := range index {
		if strings.ToLower(index[i].Name) == mythic {
			return &index[i], TierMythicPrefix
		}
	}

	if e := containing(index, name); e != nil {
		return e, TierSubstring
	}

	if idx := strings.Index(name, ","); idx > 0 {
		if prefix := strings.TrimSpace(name[:idx]); prefix != "" {
			if e := containing(index, prefix); e != nil {
				return e, TierCommaPrefix
			}
		}
	}

	if fields := strings.Fields(name); len(fields) > 0 && len([]rune(fields[0])) >= minFirstWordLen {
		if e := containing(index, fields[0]); e != nil {
			return e, TierFirstWord
		}
	}

	return nil, TierNone
}

func containing(index []models.AchievementIndexEntry, needle string) *models.AchievementIndexEntry {
	needle = strings.ToLower(needle)
	for i := range index {
		if strings.Contains(strings.ToLower(index[i].Name), needle) {
			return &index[i]
		}
	}
	return nil
}
