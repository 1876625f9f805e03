package reconcile

import (
	"context"
	"sort"
)

// PlanOnly computes the actions a synchronization would perform without
// writing anything.
func (s *Synchronizer) PlanOnly(ctx context.Context, changeSet *ChangeSet) (*Plan, error) {
	if _, err := s.env.Columns.Columns(ctx, s.env.TableName(s.info)); err != nil {
		return nil, s.fail("", err)
	}
	return s.plan(ctx, changeSet)
}

// PlanAll computes plans for the given types (all when empty) in dependency
// order.
func (e *Environment) PlanAll(ctx context.Context, types []string, changeSet *ChangeSet) ([]*Plan, error) {
	if len(types) == 0 {
		types = e.Schema.Names()
	}
	var plans []*Plan
	for _, t := range e.Schema.Sort(types) {
		if changeSet != nil && len(changeSet.ForType(t)) == 0 {
			continue
		}
		s, err := e.Synchronizer(t)
		if err != nil {
			return plans, &SyncError{EntityType: t, Err: err}
		}
		p, err := s.PlanOnly(ctx, changeSet)
		if err != nil {
			return plans, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
