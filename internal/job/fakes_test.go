package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/raid-tracker/internal/broadcast"
	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/storage"
	"github.com/raid-tracker/internal/types"
)

type memProcessing struct {
	mu     sync.Mutex
	states map[int64]models.ProcessingState
	saves  int
}

func newMemProcessing() *memProcessing {
	return &memProcessing{states: make(map[int64]models.ProcessingState)}
}

func (m *memProcessing) CreateIfAbsent(_ context.Context, state *models.ProcessingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[state.CharacterID]; !ok {
		m.states[state.CharacterID] = copyState(state)
	}
	return nil
}

func (m *memProcessing) Get(_ context.Context, characterID int64) (*models.ProcessingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[characterID]
	if !ok {
		return nil, nil
	}
	cp := copyState(&st)
	return &cp, nil
}

func (m *memProcessing) Reset(_ context.Context, characterID int64, totalSteps int, at time.Time) (*models.ProcessingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	generation := int64(1)
	if st, ok := m.states[characterID]; ok {
		generation = st.Generation + 1
	}
	st := models.NewProcessingState(characterID, totalSteps)
	st.UpdatedAt = at
	st.Generation = generation
	m.states[characterID] = copyState(st)
	return st, nil
}

// SaveStage mirrors the column scoping and generation guard of the Postgres repository
func (m *memProcessing) SaveStage(_ context.Context, state *models.ProcessingState, stage types.Stage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[state.CharacterID]
	if !ok || st.Generation != state.Generation {
		return false, nil
	}
	m.saves++
	if stage == types.StageDeep {
		st.DeepScanStatus = state.DeepScanStatus
		st.DeepScanCompletedAt = state.DeepScanCompletedAt
	} else {
		st.LightweightStatus = state.LightweightStatus
		st.LightweightCompletedAt = state.LightweightCompletedAt
	}
	st.CurrentStep = state.CurrentStep
	st.StepsCompleted = append([]string{}, state.StepsCompleted...)
	st.ErrorMessage = state.ErrorMessage
	st.UpdatedAt = state.UpdatedAt
	m.states[state.CharacterID] = st
	return true, nil
}

func (m *memProcessing) get(characterID int64) models.ProcessingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[characterID]
}

func copyState(s *models.ProcessingState) models.ProcessingState {
	cp := *s
	cp.StepsCompleted = append([]string{}, s.StepsCompleted...)
	return cp
}

type memQueue struct {
	mu   sync.Mutex
	jobs map[types.Stage][]*models.QueueJob
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[types.Stage][]*models.QueueJob)}
}

func (q *memQueue) Push(_ context.Context, job *models.QueueJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *job
	q.jobs[job.Stage] = append(q.jobs[job.Stage], &cp)
	return nil
}

func (q *memQueue) Pop(_ context.Context, stage types.Stage) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs[stage]) == 0 {
		return nil, nil
	}
	job := q.jobs[stage][0]
	q.jobs[stage] = q.jobs[stage][1:]
	return job, nil
}

func (q *memQueue) Len(_ context.Context, stage types.Stage) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs[stage]), nil
}

type memCharacters struct {
	mu         sync.Mutex
	profiles   map[int64]models.CharacterProfile
	rankings   map[int64][]models.CharacterRanking
	runs       map[int64][]models.DungeonRun
	statistics map[int64]models.CharacterStatistics
	summaries  map[int64]models.NarrativeSummary
}

func newMemCharacters() *memCharacters {
	return &memCharacters{
		profiles:   make(map[int64]models.CharacterProfile),
		rankings:   make(map[int64][]models.CharacterRanking),
		runs:       make(map[int64][]models.DungeonRun),
		statistics: make(map[int64]models.CharacterStatistics),
		summaries:  make(map[int64]models.NarrativeSummary),
	}
}

func (m *memCharacters) UpsertProfile(_ context.Context, p *models.CharacterProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.CharacterID] = *p
	return nil
}

func (m *memCharacters) UpdateAchievements(_ context.Context, characterID int64, points, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[characterID]
	if !ok {
		return errors.New("profile missing")
	}
	p.AchievementPoints = points
	p.AchievementCount = count
	m.profiles[characterID] = p
	return nil
}

func (m *memCharacters) GetProfile(_ context.Context, characterID int64) (*models.CharacterProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[characterID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memCharacters) DeleteRankings(_ context.Context, characterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rankings, characterID)
	return nil
}

func (m *memCharacters) InsertRankings(_ context.Context, rankings []models.CharacterRanking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rankings {
		m.rankings[r.CharacterID] = append(m.rankings[r.CharacterID], r)
	}
	return nil
}

func (m *memCharacters) ListRankings(_ context.Context, characterID int64) ([]models.CharacterRanking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CharacterRanking(nil), m.rankings[characterID]...), nil
}

func (m *memCharacters) DeleteDungeonRuns(_ context.Context, characterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, characterID)
	return nil
}

func (m *memCharacters) InsertDungeonRuns(_ context.Context, runs []models.DungeonRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range runs {
		m.runs[r.CharacterID] = append(m.runs[r.CharacterID], r)
	}
	return nil
}

func (m *memCharacters) ListDungeonRuns(_ context.Context, characterID int64) ([]models.DungeonRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DungeonRun(nil), m.runs[characterID]...), nil
}

func (m *memCharacters) SaveStatistics(_ context.Context, s *models.CharacterStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statistics[s.CharacterID] = *s
	return nil
}

func (m *memCharacters) DeleteStatistics(_ context.Context, characterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statistics, characterID)
	return nil
}

func (m *memCharacters) SaveSummary(_ context.Context, s *models.NarrativeSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.CharacterID] = *s
	return nil
}

func (m *memCharacters) DeleteSummary(_ context.Context, characterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.summaries, characterID)
	return nil
}

type fakeCatalog struct {
	raids []models.RaidWithBosses
}

func (f *fakeCatalog) ListRaidsWithBosses(_ context.Context) ([]models.RaidWithBosses, error) {
	return f.raids, nil
}

type fakeProfiles struct {
	mu              sync.Mutex
	summary         *models.ProfileSummary
	achievements    *models.CharacterAchievements
	profileErr      error
	achievementsErr error
	calls           int
}

func (f *fakeProfiles) Profile(_ context.Context, _ models.Character) (*models.ProfileSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.summary, nil
}

func (f *fakeProfiles) Media(_ context.Context, _ models.Character) (*models.ProfileMedia, error) {
	return &models.ProfileMedia{Assets: map[string]string{"avatar": "https://render.example/avatar.jpg"}}, nil
}

func (f *fakeProfiles) Achievements(_ context.Context, _ models.Character) (*models.CharacterAchievements, error) {
	if f.achievementsErr != nil {
		return nil, f.achievementsErr
	}
	if f.achievements == nil {
		// the adapter maps a 404 to an empty result
		return &models.CharacterAchievements{}, nil
	}
	return f.achievements, nil
}

type rankingCall struct {
	encounterIDs []int
	difficulty   types.Difficulty
}

type fakeRankings struct {
	mu     sync.Mutex
	calls  []rankingCall
	err    error
	before func()
}

func (f *fakeRankings) Rankings(_ context.Context, _ models.Character, encounterIDs []int, difficulty types.Difficulty) (map[int]models.RankingSet, error) {
	if f.before != nil {
		hook := f.before
		f.before = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rankingCall{append([]int(nil), encounterIDs...), difficulty})
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[int]models.RankingSet)
	for _, id := range encounterIDs {
		pct := float64(id % 100)
		out[id] = models.RankingSet{EncounterID: id, Difficulty: int(difficulty), BestPercent: &pct, Kills: 2}
	}
	return out, nil
}

type fakeDungeons struct {
	mu       sync.Mutex
	profiles map[string]*models.DungeonProfile
	fields   [][]string
}

func (f *fakeDungeons) CharacterProfile(_ context.Context, _ models.Character, fields []string) (*models.DungeonProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = append(f.fields, fields)
	for season, profile := range f.profiles {
		for _, field := range fields {
			if field == "mythic_plus_best_runs:"+season {
				return profile, nil
			}
		}
	}
	return &models.DungeonProfile{}, nil
}

type fakeStaticMeta struct {
	mu    sync.Mutex
	mplus map[int]*models.MplusStaticMeta
	calls int
}

func (f *fakeStaticMeta) StaticRaidMeta(_ context.Context, _ int) ([]models.RaidStaticMeta, error) {
	return nil, nil
}

func (f *fakeStaticMeta) StaticMplusMeta(_ context.Context, expansionID int) (*models.MplusStaticMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.mplus[expansionID], nil
}

// fixture wires a pipeline over in-memory collaborators
type fixture struct {
	pipeline    *Pipeline
	processing  *memProcessing
	queue       *memQueue
	characters  *memCharacters
	profiles    *fakeProfiles
	rankings    *fakeRankings
	dungeons    *fakeDungeons
	staticMeta  *fakeStaticMeta
	broadcaster *broadcast.Broadcaster
}

func testSeasons() []models.SeasonDefinition {
	return []models.SeasonDefinition{
		{Slug: "tww-s1", Number: 1, ZoneIDs: []int{38}, SourceExpansionID: 7, StaticMetaExpansionID: 10},
		{Slug: "tww-s2", Number: 2, ZoneIDs: []int{42}, SourceExpansionID: 7, StaticMetaExpansionID: 10},
	}
}

func testRaids() []models.RaidWithBosses {
	bosses := func(raidID int64, first, n int) []models.Boss {
		out := make([]models.Boss, n)
		for i := range out {
			out[i] = models.Boss{RaidID: raidID, SourceEncounterID: first + i, Position: i + 1}
		}
		return out
	}
	return []models.RaidWithBosses{
		{Raid: models.Raid{ID: 1, SourceZoneID: 38, Name: "Nerub-ar Palace"}, SeasonSlug: "tww-s1", Bosses: bosses(1, 2902, 8)},
		{Raid: models.Raid{ID: 2, SourceZoneID: 42, Name: "Liberation of Undermine"}, SeasonSlug: "tww-s2", Bosses: bosses(2, 3009, 8)},
		{Raid: models.Raid{ID: 3, SourceZoneID: 31, Name: "Castle Nathria"}, SeasonSlug: "sl-s1", Bosses: bosses(3, 2398, 10)},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := storage.NewCacheService(storage.NewRedisCacheStore(storage.NewRedisCacheFromClient(client), time.Hour), logging.NewNopLogger())

	completed := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	f := &fixture{
		processing: newMemProcessing(),
		queue:      newMemQueue(),
		characters: newMemCharacters(),
		profiles: &fakeProfiles{
			summary: &models.ProfileSummary{ID: 99, Name: "Thrall", Level: 80, ItemLevel: 639, AchievementPoints: 100},
			achievements: &models.CharacterAchievements{
				TotalQuantity: 3,
				TotalPoints:   25,
				Achievements:  []models.AchievementRecord{{ID: 1}, {ID: 2}, {ID: 3}},
			},
		},
		rankings: &fakeRankings{},
		dungeons: &fakeDungeons{profiles: map[string]*models.DungeonProfile{
			"season-tww-2": {
				BestRuns:   []models.DungeonRunRecord{{Dungeon: "Cinderbrew Meadery", KeyLevel: 12, Score: 300, Upgrades: 1, CompletedAt: &completed}},
				RecentRuns: []models.DungeonRunRecord{{Dungeon: "Cinderbrew Meadery", KeyLevel: 12, Score: 300, Upgrades: 1, CompletedAt: &completed}},
			},
			"season-tww-1": {
				BestRuns:      []models.DungeonRunRecord{{Dungeon: "Ara-Kara", KeyLevel: 10, Score: 250, Upgrades: 0}},
				AlternateRuns: []models.DungeonRunRecord{{Dungeon: "Ara-Kara", KeyLevel: 9, Score: 200, Upgrades: 2}},
			},
		}},
		staticMeta: &fakeStaticMeta{mplus: map[int]*models.MplusStaticMeta{
			10: {Seasons: []models.MplusSeason{
				{Slug: "season-tww-2", IsMainSeason: true},
				{Slug: "season-tww-1", IsMainSeason: true},
			}},
		}},
		broadcaster: broadcast.NewBroadcaster(logging.NewNopLogger()),
	}

	p, err := NewPipeline(&PipelineConfig{
		Processing:  f.processing,
		Queue:       f.queue,
		Characters:  f.characters,
		Catalog:     &fakeCatalog{raids: testRaids()},
		Cache:       cache,
		Profiles:    f.profiles,
		Rankings:    f.rankings,
		Dungeons:    f.dungeons,
		StaticMeta:  f.staticMeta,
		Broadcaster: f.broadcaster,
		Logger:      logging.NewNopLogger(),
		Seasons:     testSeasons(),
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func testJob() *models.QueueJob {
	return &models.QueueJob{CharacterID: 42, Name: "Thrall", Realm: "draenor", Region: "EU", RequestedBy: "user-1"}
}

// runNext pops and processes one job of the stage
func (f *fixture) runNext(t *testing.T, stage types.Stage) error {
	t.Helper()
	job, err := f.queue.Pop(context.Background(), stage)
	require.NoError(t, err)
	require.NotNil(t, job, "expected a queued %s job", stage)
	return f.pipeline.Process(context.Background(), job)
}

func sortedEncounterIDs(rows []models.CharacterRanking) []int {
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.EncounterID)
	}
	sort.Ints(ids)
	return ids
}

var errProviderDown = apperrors.NewProviderStatusError(types.ProviderCombatLog, 502, "bad gateway")
