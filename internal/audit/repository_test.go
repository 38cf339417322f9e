package audit

import (
	"context"
	"testing"
	"time"

	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/database"
	_ "github.com/brightears/soundtrack-auto-volume/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	base := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return repo
}

func TestRecord_AssignsIDAndTime(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e := &Entry{
		Action:     ActionUpdate,
		EntityType: EntityZoneConfig,
		EntityID:   "cfg-1",
		Source:     SourceAPI,
		Details:    map[string]any{"min_volume": 6},
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("entry = %+v, want ID and CreatedAt set", e)
	}

	page, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 || len(page.Entries) != 1 {
		t.Fatalf("page = %+v, want one entry", page)
	}
	got := page.Entries[0]
	if got.EntityID != "cfg-1" || got.Source != SourceAPI {
		t.Errorf("entry = %+v", got)
	}
	// JSON numbers decode as float64.
	if got.Details["min_volume"] != float64(6) {
		t.Errorf("details = %v", got.Details)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestRecord_RequiresFields(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"no action", Entry{EntityType: EntityDevice, Source: SourceAPI}},
		{"no entity type", Entry{Action: ActionCreate, Source: SourceAPI}},
		{"no source", Entry{Action: ActionCreate, EntityType: EntityDevice}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Record(context.Background(), &tt.entry); err == nil {
				t.Error("Record() error = nil, want error")
			}
		})
	}
}

func TestList_FiltersAndPages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []Entry{
		{Action: ActionCreate, EntityType: EntityDevice, EntityID: "dev-1", Source: SourceAPI},
		{Action: ActionCommand, EntityType: EntityDevice, EntityID: "dev-1", Source: SourceMQTT},
		{Action: ActionCreate, EntityType: EntityZoneConfig, EntityID: "cfg-1", Source: SourceAPI},
		{Action: ActionDelete, EntityType: EntityZoneConfig, EntityID: "cfg-1", Source: SourceAPI},
		{Action: ActionCommand, EntityType: EntityZone, EntityID: "zone-1", Source: SourceAPI},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantIDs   []string
	}{
		{"all newest first", Filter{}, 5, []string{"zone-1", "cfg-1", "cfg-1", "dev-1", "dev-1"}},
		{"by action", Filter{Action: ActionCommand}, 2, []string{"zone-1", "dev-1"}},
		{"by entity", Filter{EntityType: EntityZoneConfig, EntityID: "cfg-1"}, 2, []string{"cfg-1", "cfg-1"}},
		{"paged", Filter{Limit: 2, Offset: 1}, 5, []string{"cfg-1", "cfg-1"}},
		{"no match", Filter{EntityID: "nope"}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
			ids := make([]string, 0, len(page.Entries))
			for _, e := range page.Entries {
				ids = append(ids, e.EntityID)
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("entity IDs = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("entity IDs = %v, want %v", ids, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	page, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != maxLimit || page.Offset != 0 {
		t.Errorf("Limit = %d, Offset = %d, want %d, 0", page.Limit, page.Offset, maxLimit)
	}

	page, err = repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", page.Limit, defaultLimit)
	}
}
