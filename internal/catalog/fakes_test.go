package catalog

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/storage"
)

// memStore is an in-memory catalog store keyed like the Postgres repository
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	inserts int

	expansions map[string]*models.Expansion
	seasons    map[string]*models.Season
	raids      map[int]*models.Raid
	bosses     map[[2]int64]*models.Boss
}

func newMemStore() *memStore {
	return &memStore{
		expansions: make(map[string]*models.Expansion),
		seasons:    make(map[string]*models.Season),
		raids:      make(map[int]*models.Raid),
		bosses:     make(map[[2]int64]*models.Boss),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	s.inserts++
	return s.nextID
}

func (s *memStore) UpsertExpansion(_ context.Context, exp *models.Expansion) (models.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.expansions[exp.Slug]; ok {
		existing.Name = exp.Name
		existing.SourceExpansionID = exp.SourceExpansionID
		return models.UpsertResult{ID: existing.ID}, nil
	}
	cp := *exp
	cp.ID = s.id()
	s.expansions[exp.Slug] = &cp
	return models.UpsertResult{ID: cp.ID, Inserted: true}, nil
}

func (s *memStore) FindExpansionBySourceID(_ context.Context, sourceID int) (*models.Expansion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expansions {
		if e.SourceExpansionID == sourceID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpsertSeason(_ context.Context, season *models.Season) (models.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.seasons[season.Slug]; ok {
		id := existing.ID
		*existing = *season
		existing.ID = id
		return models.UpsertResult{ID: id}, nil
	}
	cp := *season
	cp.ID = s.id()
	s.seasons[season.Slug] = &cp
	return models.UpsertResult{ID: cp.ID, Inserted: true}, nil
}

func (s *memStore) GetRaidBySourceZoneID(_ context.Context, zoneID int) (*models.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.raids[zoneID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpsertRaid(_ context.Context, raid *models.Raid) (models.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.raids[raid.SourceZoneID]; ok {
		id := existing.ID
		*existing = *raid
		existing.ID = id
		return models.UpsertResult{ID: id}, nil
	}
	cp := *raid
	cp.ID = s.id()
	s.raids[raid.SourceZoneID] = &cp
	return models.UpsertResult{ID: cp.ID, Inserted: true}, nil
}

func (s *memStore) GetBoss(_ context.Context, raidID int64, encounterID int) (*models.Boss, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bosses[[2]int64{raidID, int64(encounterID)}]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpsertBoss(_ context.Context, boss *models.Boss) (models.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{boss.RaidID, int64(boss.SourceEncounterID)}
	if existing, ok := s.bosses[key]; ok {
		id := existing.ID
		*existing = *boss
		existing.ID = id
		return models.UpsertResult{ID: id}, nil
	}
	cp := *boss
	cp.ID = s.id()
	s.bosses[key] = &cp
	return models.UpsertResult{ID: cp.ID, Inserted: true}, nil
}

func (s *memStore) ListRaidsWithBosses(_ context.Context) ([]models.RaidWithBosses, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seasonSlugs := make(map[int64]string)
	for _, season := range s.seasons {
		seasonSlugs[season.ID] = season.Slug
	}

	var out []models.RaidWithBosses
	for _, r := range s.raids {
		rw := models.RaidWithBosses{Raid: *r, SeasonSlug: seasonSlugs[r.SeasonID], Bosses: []models.Boss{}}
		for _, b := range s.bosses {
			if b.RaidID == r.ID {
				rw.Bosses = append(rw.Bosses, *b)
			}
		}
		sort.Slice(rw.Bosses, func(i, j int) bool { return rw.Bosses[i].Position < rw.Bosses[j].Position })
		out = append(out, rw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceZoneID < out[j].SourceZoneID })
	return out, nil
}

func (s *memStore) bossesFor(zoneID int) []models.Boss {
	raids, _ := s.ListRaidsWithBosses(context.Background())
	for _, r := range raids {
		if r.SourceZoneID == zoneID {
			return r.Bosses
		}
	}
	return nil
}

type fakeStructure struct {
	mu    sync.Mutex
	zones map[int]*models.ZoneDetail
	errs  map[int]error
	calls int
}

func (f *fakeStructure) ZoneDetail(_ context.Context, zoneID int) (*models.ZoneDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[zoneID]; err != nil {
		return nil, err
	}
	return f.zones[zoneID], nil
}

type fakeStaticMeta struct {
	mu    sync.Mutex
	raids map[int][]models.RaidStaticMeta
	err   error
	calls int
}

func (f *fakeStaticMeta) StaticRaidMeta(_ context.Context, expansionID int) ([]models.RaidStaticMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.raids[expansionID], nil
}

func (f *fakeStaticMeta) StaticMplusMeta(_ context.Context, _ int) (*models.MplusStaticMeta, error) {
	return &models.MplusStaticMeta{}, nil
}

type fakeIcons struct {
	mu        sync.Mutex
	index     []models.AchievementIndexEntry
	icons     map[int]string
	indexErr  error
	iconCalls int
}

func (f *fakeIcons) AchievementIndex(_ context.Context) ([]models.AchievementIndexEntry, error) {
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return f.index, nil
}

func (f *fakeIcons) AchievementIcon(_ context.Context, id int) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iconCalls++
	icon, ok := f.icons[id]
	if !ok {
		return nil, nil
	}
	return &icon, nil
}

func newTestCache(t *testing.T) *storage.CacheService {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := storage.NewRedisCacheStore(storage.NewRedisCacheFromClient(client), time.Hour)
	return storage.NewCacheService(store, logging.NewNopLogger())
}
