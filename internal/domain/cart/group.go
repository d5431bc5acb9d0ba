package cart

// StoreGroup is the subset of a cart's line items belonging to one store.
// Each store fulfils and ships independently, so pricing, coupons, and
// shipping are all computed per group.
type StoreGroup struct {
	StoreID string
	Items   []LineItem
}

// Group partitions line items by store, preserving first-seen store order and
// item order within each group. It is a pure function of its input.
//
// Returns ErrEmptyCart for an empty sequence and InvalidQuantityError when
// any item has a non-positive quantity.
func Group(items []LineItem) ([]StoreGroup, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	index := make(map[string]int, len(items))
	groups := make([]StoreGroup, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{VariantID: item.VariantID, Quantity: item.Quantity}
		}

		i, ok := index[item.StoreID]
		if !ok {
			i = len(groups)
			index[item.StoreID] = i
			groups = append(groups, StoreGroup{StoreID: item.StoreID})
		}
		groups[i].Items = append(groups[i].Items, item)
	}

	return groups, nil
}
