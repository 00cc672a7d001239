package usecase

import (
	"github.com/google/uuid"

	"souschef/internal/domain"
)

// shoppingList is replaced wholesale by the agent and edited locally by the user.
// Local edits are never echoed back; the next remote update wins.
type shoppingList struct {
	items []domain.ShoppingItem
}

func newShoppingList() *shoppingList {
	return &shoppingList{}
}

// Replace installs the authoritative list. It never merges with prior items.
func (s *shoppingList) Replace(items []domain.ShoppingItem) {
	next := make([]domain.ShoppingItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = "item-" + uuid.NewString()
		}
		if item.Quantity < 0 {
			item.Quantity = 0
		}
		next = append(next, item)
	}
	s.items = next
}

// Clear empties the list and reports whether it held anything.
func (s *shoppingList) Clear() bool {
	had := len(s.items) > 0
	s.items = nil
	return had
}

// Remove deletes one item by id.
func (s *shoppingList) Remove(id string) bool {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// SetQuantity edits an item locally; a quantity of zero or less removes it.
func (s *shoppingList) SetQuantity(id string, quantity int) bool {
	if quantity <= 0 {
		return s.Remove(id)
	}
	for i := range s.items {
		if s.items[i].ID == id {
			if s.items[i].Quantity == quantity {
				return false
			}
			s.items[i].Quantity = quantity
			return true
		}
	}
	return false
}

func (s *shoppingList) Items() []domain.ShoppingItem {
	out := make([]domain.ShoppingItem, len(s.items))
	copy(out, s.items)
	return out
}
