package repository

import (
	"testing"

	"portfolio-sync/internal/domain"
)

func TestMemoryStoreSaveFindDelete(t *testing.T) {
	store := NewMemoryStore()

	saved, err := store.Save(domain.CollectionOrders, domain.Record{"id": "x1", "symbol": "BTC"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.ID() != "x1" {
		t.Fatalf("expected id x1, got %q", saved.ID())
	}

	found := store.FindByID(domain.CollectionOrders, "x1")
	if found == nil {
		t.Fatal("expected record after save")
	}
	if found["symbol"] != "BTC" {
		t.Fatalf("unexpected symbol: %v", found["symbol"])
	}

	removed, err := store.Delete(domain.CollectionOrders, "x1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to report removal")
	}

	if store.FindByID(domain.CollectionOrders, "x1") != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestMemoryStoreAssignsID(t *testing.T) {
	store := NewMemoryStore()

	saved, err := store.Save(domain.CollectionWatchlist, domain.Record{"symbol": "ETH"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.ID() == "" {
		t.Fatal("expected an engine-assigned id")
	}

	if store.FindByID(domain.CollectionWatchlist, saved.ID()) == nil {
		t.Fatal("expected record under assigned id")
	}
}

func TestMemoryStoreUpdateMergesFields(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Save(domain.CollectionStrategies, domain.Record{"id": "s1", "name": "grid", "enabled": true}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := store.Update(domain.CollectionStrategies, "s1", map[string]any{"enabled": false})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated == nil {
		t.Fatal("expected merged record")
	}
	if updated["name"] != "grid" {
		t.Fatal("expected untouched fields to survive the merge")
	}
	if updated["enabled"] != false {
		t.Fatal("expected merged field to change")
	}

	missing, err := store.Update(domain.CollectionStrategies, "nope", map[string]any{"enabled": true})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for an absent record")
	}
}

func TestMemoryStoreQueryFullScan(t *testing.T) {
	store := NewMemoryStore()

	for _, rec := range []domain.Record{
		{"id": "a", "userId": "u1", "isActive": true},
		{"id": "b", "userId": "u1", "isActive": false},
		{"id": "c", "userId": "u2", "isActive": true},
	} {
		if _, err := store.Save(domain.CollectionLinkedExchanges, rec); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	matched := store.Query(domain.CollectionLinkedExchanges, func(rec domain.Record) bool {
		active, _ := rec["isActive"].(bool)
		return active && rec["userId"] == "u1"
	})
	if len(matched) != 1 || matched[0].ID() != "a" {
		t.Fatalf("unexpected query result: %v", matched)
	}
}

func TestMemoryStoreClearCollection(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Save(domain.CollectionNotifications, domain.Record{"id": "n1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.ClearCollection(domain.CollectionNotifications); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(store.FindAll(domain.CollectionNotifications)) != 0 {
		t.Fatal("expected empty collection after clear")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Save(domain.CollectionPositions, domain.Record{"id": "p1", "size": 1.0}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	rec := store.FindByID(domain.CollectionPositions, "p1")
	rec["size"] = 99.0

	again := store.FindByID(domain.CollectionPositions, "p1")
	if again["size"] != 1.0 {
		t.Fatal("caller mutation leaked into the store")
	}
}
