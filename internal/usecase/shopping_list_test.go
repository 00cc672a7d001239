package usecase

import (
	"testing"

	"souschef/internal/domain"
)

func TestShoppingListReplaceNeverMerges(t *testing.T) {
	t.Parallel()

	s := newShoppingList()
	s.Replace([]domain.ShoppingItem{{ID: "1", Name: "Flour", Quantity: 1}, {ID: "2", Name: "Eggs", Quantity: 6}})
	s.Replace([]domain.ShoppingItem{{ID: "3", Name: "Milk", Quantity: 2}})

	items := s.Items()
	if len(items) != 1 || items[0].ID != "3" {
		t.Fatalf("expected only the second list, got %+v", items)
	}
}

func TestShoppingListReplaceNormalizesItems(t *testing.T) {
	t.Parallel()

	s := newShoppingList()
	s.Replace([]domain.ShoppingItem{{Name: "Salt", Quantity: -2}})

	items := s.Items()
	if items[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if items[0].Quantity != 0 {
		t.Fatalf("expected quantity clamped to 0, got %d", items[0].Quantity)
	}
}

func TestShoppingListLocalEdits(t *testing.T) {
	t.Parallel()

	s := newShoppingList()
	s.Replace([]domain.ShoppingItem{{ID: "a", Quantity: 1}, {ID: "b", Quantity: 1}, {ID: "c", Quantity: 1}})

	if !s.SetQuantity("a", 3) {
		t.Fatalf("expected quantity change")
	}
	if s.SetQuantity("a", 3) {
		t.Fatalf("expected unchanged quantity to report false")
	}
	if !s.SetQuantity("b", 0) {
		t.Fatalf("expected zero quantity to remove item")
	}
	if !s.Remove("c") || s.Remove("c") {
		t.Fatalf("unexpected remove results")
	}

	items := s.Items()
	if len(items) != 1 || items[0].ID != "a" || items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if !s.Clear() || len(s.Items()) != 0 {
		t.Fatalf("expected cleared list")
	}
}
