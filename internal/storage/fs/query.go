package fs

import (
	"context"

	"github.com/caldavd/caldavd/internal/item/filter"
	"github.com/caldavd/caldavd/internal/item/ical"
	"github.com/caldavd/caldavd/internal/item/vcard"
	"github.com/caldavd/caldavd/internal/storage"
)

// QueryItems evaluates cf against every item in the calendar collection
// at p. maxOccurrences caps recurrence expansion (spec.md §4.1: exceeding
// it is a caller-visible 403/max-resource-size, reported via
// ical.ErrTooManyOccurrences).
func (s *Store) QueryItems(ctx context.Context, p string, cf *filter.CompFilter, maxOccurrences int) ([]*storage.Item, error) {
	items, err := s.ListItems(ctx, p)
	if err != nil {
		return nil, err
	}
	if cf == nil {
		return items, nil
	}
	if maxOccurrences <= 0 {
		maxOccurrences = s.maxRecurrence
	}
	expander := ical.NewExpander(maxOccurrences)

	var out []*storage.Item
	for _, it := range items {
		parsed, perr := ical.Parse(it.Payload)
		if perr != nil {
			continue
		}
		ok, err := filter.MatchesComponent(cf, parsed.Cal, expander)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// QueryCards evaluates a flat prop-filter list against every card in the
// address book collection at p.
func (s *Store) QueryCards(ctx context.Context, p string, pfs []filter.PropFilter, test string) ([]*storage.Item, error) {
	items, err := s.ListItems(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(pfs) == 0 {
		return items, nil
	}
	var out []*storage.Item
	for _, it := range items {
		parsed, perr := vcard.Parse(it.Payload)
		if perr != nil {
			continue
		}
		if filter.MatchesCard(pfs, test, parsed.Card) {
			out = append(out, it)
		}
	}
	return out, nil
}
