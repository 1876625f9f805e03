package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"content-history/core/database"
	"content-history/core/reference"
	"content-history/core/schema"
	"content-history/core/storage"
	"content-history/core/utils"

	"go.uber.org/zap"
)

// Synchronizer makes the database rows of one entity type match storage.
type Synchronizer struct {
	env     *Environment
	info    *schema.EntityInfo
	storage storage.EntityStorage
}

// EntityInfo returns the synchronized type.
func (s *Synchronizer) EntityInfo() *schema.EntityInfo {
	return s.info
}

// Reset clears the comparison cache of this type and the identifier cache,
// forcing the next call to diff every entity again.
func (s *Synchronizer) Reset() {
	s.env.cache.ResetType(s.info.Name)
	s.env.IDs.Reset()
	s.env.Columns.Reset()
}

// dbRow is one database row of the synchronized table.
type dbRow struct {
	key    any
	vpID   string
	values map[string]any
}

// Synchronize computes and applies the inserts, updates and deletes that
// make the database match storage. A non-nil changeSet restricts the scope to
// the entities it names for this type; rows outside the scope are never
// touched. Deletes run first, then updates, then inserts, then references to
// rows inserted in this pass are filled in.
func (s *Synchronizer) Synchronize(ctx context.Context, mode Mode, changeSet *ChangeSet) (*Result, error) {
	if mode != ModeEverything {
		return nil, s.fail("", fmt.Errorf("unsupported mode %q", mode))
	}
	start := time.Now()

	table := s.env.TableName(s.info)
	columns, err := s.env.Columns.Columns(ctx, table)
	if err != nil {
		return nil, s.fail("", err)
	}

	if changeSet == nil {
		if err := s.forgetOrphans(ctx); err != nil {
			return nil, err
		}
	}

	plan, err := s.plan(ctx, changeSet)
	if err != nil {
		return nil, err
	}

	writes, err := s.prepareWrites(ctx, plan, columns)
	if err != nil {
		return nil, err
	}

	res, err := s.apply(ctx, plan, writes)
	if err != nil {
		return res, err
	}

	if len(res.Deferred) > 0 {
		if res.Deferred, err = s.env.applyPending(ctx, res.Deferred); err != nil {
			return res, err
		}
	}

	s.env.Logger.Info("Synchronized entity type",
		zap.String("type", s.info.Name),
		zap.Bool("selective", changeSet != nil),
		zap.Int("scope", plan.Summary.Scope),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
		zap.Int("deferred", len(res.Deferred)),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func (s *Synchronizer) fail(vpID string, err error) error {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return err
	}
	if vpID == "" {
		vpID = vpIDOf(err)
	}
	return &SyncError{EntityType: s.info.Name, VpID: vpID, Err: err}
}

// forgetOrphans drops identifiers whose row was deleted outside of
// synchronization, so references never resolve to a missing primary key.
func (s *Synchronizer) forgetOrphans(ctx context.Context) error {
	if !s.info.UsesGeneratedVpIDs {
		return nil
	}
	mapped, err := s.env.IDs.All(ctx, s.info.Table)
	if err != nil {
		return s.fail("", err)
	}
	if len(mapped) == 0 {
		return nil
	}

	var pks []int64
	err = s.env.DB.WithContext(ctx).Table(s.env.TableName(s.info)).Pluck(s.info.IDColumn, &pks).Error
	if err != nil {
		return s.fail("", fmt.Errorf("failed to load %s keys: %w", s.info.Name, err))
	}
	live := make(map[int64]bool, len(pks))
	for _, pk := range pks {
		live[pk] = true
	}

	for _, vpID := range sortedKeys(mapped) {
		if live[mapped[vpID]] {
			continue
		}
		if err := s.env.IDs.Forget(ctx, s.info.Table, vpID); err != nil {
			return s.fail(vpID, err)
		}
		s.env.cache.Forget(s.info.Name, vpID)
		s.env.Logger.Debug("Forgot identifier of missing row",
			zap.String("type", s.info.Name),
			zap.String("vp_id", vpID),
			zap.Int64("key", mapped[vpID]))
	}
	return nil
}

// keyColumn is the column rows are addressed by.
func (s *Synchronizer) keyColumn() string {
	return s.info.KeyColumn()
}

// plan builds the disjoint insert, update and delete sets.
func (s *Synchronizer) plan(ctx context.Context, changeSet *ChangeSet) (*Plan, error) {
	stored, order, absent, err := s.loadScope(changeSet)
	if err != nil {
		return nil, err
	}

	var rows map[string]*dbRow
	var unmapped []*dbRow
	if changeSet == nil {
		rows, unmapped, err = s.loadAllRows(ctx)
	} else {
		scope := append(append([]string(nil), order...), absent...)
		rows, err = s.loadRows(ctx, scope)
	}
	if err != nil {
		return nil, err
	}

	plan := &Plan{EntityType: s.info.Name}
	plan.Summary.Scope = len(order) + len(absent)

	var deletes, updates, inserts []Action

	// in database, not in storage
	deleteRow := func(row *dbRow, reason string) {
		if s.info.IsIgnored(rowStrings(row.values)) {
			plan.Summary.Ignored++
			return
		}
		deletes = append(deletes, Action{
			Type:   ActionDelete,
			Ref:    storage.Ref{Type: s.info.Name, VpID: row.vpID},
			Key:    row.key,
			Reason: reason,
		})
	}
	if changeSet == nil {
		for _, vpID := range sortedKeys(rows) {
			if _, ok := stored[vpID]; !ok {
				deleteRow(rows[vpID], "not in storage")
			}
		}
		for _, row := range unmapped {
			deleteRow(row, "row has no identifier")
		}
	} else {
		for _, vpID := range absent {
			if row, ok := rows[vpID]; ok {
				deleteRow(row, "removed from storage")
			}
		}
	}

	for _, vpID := range order {
		entity := stored[vpID]
		if s.info.IsIgnored(entity.Fields) {
			plan.Summary.Ignored++
			continue
		}
		row, inDB := rows[vpID]
		if !inDB {
			inserts = append(inserts, Action{
				Type:   ActionInsert,
				Ref:    entity.Ref(),
				Reason: "not in database",
				entity: entity,
			})
			continue
		}

		fp := Fingerprint(entity.Fields)
		if s.env.cache.Matches(s.info.Name, vpID, fp) {
			plan.Summary.Unchanged++
			continue
		}
		diff, err := s.diff(ctx, entity, row)
		if err != nil {
			return nil, s.fail(vpID, err)
		}
		if len(diff) == 0 {
			s.env.cache.Store(s.info.Name, vpID, fp)
			plan.Summary.Unchanged++
			continue
		}
		updates = append(updates, Action{
			Type:   ActionUpdate,
			Ref:    entity.Ref(),
			Key:    row.key,
			Reason: "changed: " + strings.Join(diff, ", "),
			entity: entity,
		})
	}

	plan.Actions = append(append(deletes, updates...), inserts...)
	plan.Summary.Deletes = len(deletes)
	plan.Summary.Updates = len(updates)
	plan.Summary.Inserts = len(inserts)
	return plan, nil
}

// loadScope returns the stored entities in scope keyed by vpId, their order,
// and the change set vpIds that are no longer stored.
func (s *Synchronizer) loadScope(changeSet *ChangeSet) (map[string]storage.Entity, []string, []string, error) {
	stored := make(map[string]storage.Entity)
	var order, absent []string

	if changeSet == nil {
		for entity, err := range s.storage.All() {
			if err != nil {
				return nil, nil, nil, s.fail("", err)
			}
			if _, dup := stored[entity.VpID]; dup {
				continue
			}
			stored[entity.VpID] = entity
			order = append(order, entity.VpID)
		}
		return stored, order, nil, nil
	}

	for _, ref := range changeSet.ForType(s.info.Name) {
		entity, err := s.storage.Load(ref.VpID, ref.ParentVpID)
		if errors.Is(err, storage.ErrNotFound) {
			absent = append(absent, ref.VpID)
			continue
		}
		if err != nil {
			return nil, nil, nil, s.fail(ref.VpID, err)
		}
		stored[ref.VpID] = entity
		order = append(order, ref.VpID)
	}
	return stored, order, absent, nil
}

// loadAllRows reads the whole table. Rows whose primary key has no vpId are
// returned separately.
func (s *Synchronizer) loadAllRows(ctx context.Context) (map[string]*dbRow, []*dbRow, error) {
	var raw []map[string]any
	err := s.env.DB.WithContext(ctx).Table(s.env.TableName(s.info)).Find(&raw).Error
	if err != nil {
		return nil, nil, s.fail("", fmt.Errorf("failed to load %s rows: %w", s.info.Name, err))
	}

	rows := make(map[string]*dbRow, len(raw))
	var unmapped []*dbRow
	for _, values := range raw {
		row, err := s.toRow(ctx, values)
		if err != nil {
			return nil, nil, err
		}
		if row.vpID == "" {
			unmapped = append(unmapped, row)
			continue
		}
		rows[row.vpID] = row
	}
	return rows, unmapped, nil
}

// loadRows reads the rows of the given vpIds.
func (s *Synchronizer) loadRows(ctx context.Context, vpIDs []string) (map[string]*dbRow, error) {
	rows := make(map[string]*dbRow, len(vpIDs))
	if len(vpIDs) == 0 {
		return rows, nil
	}

	var keys []any
	if s.info.UsesGeneratedVpIDs {
		for _, vpID := range vpIDs {
			pk, ok, err := s.env.IDs.ResolveToPrimaryKey(ctx, s.info.Table, vpID)
			if err != nil {
				return nil, s.fail(vpID, err)
			}
			if ok {
				keys = append(keys, pk)
			}
		}
	} else {
		for _, vpID := range vpIDs {
			keys = append(keys, vpID)
		}
	}
	if len(keys) == 0 {
		return rows, nil
	}

	var raw []map[string]any
	err := s.env.DB.WithContext(ctx).
		Table(s.env.TableName(s.info)).
		Where(s.keyColumn()+" IN ?", keys).
		Find(&raw).Error
	if err != nil {
		return nil, s.fail("", fmt.Errorf("failed to load %s rows: %w", s.info.Name, err))
	}
	for _, values := range raw {
		row, err := s.toRow(ctx, values)
		if err != nil {
			return nil, err
		}
		if row.vpID != "" {
			rows[row.vpID] = row
		}
	}
	return rows, nil
}

func (s *Synchronizer) toRow(ctx context.Context, values map[string]any) (*dbRow, error) {
	row := &dbRow{key: values[s.keyColumn()], values: values}
	if !s.info.UsesGeneratedVpIDs {
		row.vpID = utils.ToString(values[s.info.VpIDColumn])
		return row, nil
	}
	pk := utils.ToInt64(values[s.info.IDColumn])
	vpID, ok, err := s.env.IDs.ResolveToVpID(ctx, s.info.Table, pk)
	if err != nil {
		return nil, s.fail("", err)
	}
	if ok {
		row.vpID = vpID
	}
	row.key = pk
	return row, nil
}

// diff returns the stored fields whose database value differs. Fields the
// table does not have, ignored columns and identifiers are not compared.
func (s *Synchronizer) diff(ctx context.Context, entity storage.Entity, row *dbRow) ([]string, error) {
	current, err := s.env.Resolver.ResolveForRead(ctx, s.info, row.values)
	if err != nil {
		return nil, err
	}
	if err := s.env.Replacers.ToStorage(ctx, s.info, current.Fields); err != nil {
		return nil, err
	}

	columns, err := s.env.Columns.Columns(ctx, s.env.TableName(s.info))
	if err != nil {
		return nil, err
	}

	refColumns := make(map[string]string)
	for _, ref := range s.info.AllReferences() {
		refColumns[ref.StorageField()] = ref.Column
	}

	var changed []string
	for field, want := range entity.Fields {
		if field == schema.VpIDField || field == s.info.IDColumn {
			continue
		}
		column, isRef := refColumns[field]
		if !isRef {
			column = field
		}
		if s.info.IsIgnoredColumn(column) || !columns.Has(column) {
			continue
		}
		got, ok := current.Fields[field]
		if isRef {
			if normalizeRef(want) == normalizeRef(got) {
				continue
			}
		} else if ok && got == want {
			continue
		}
		changed = append(changed, field)
	}
	if s.info.Parent != nil && entity.ParentVpID != "" {
		if _, has := entity.Fields[s.info.Parent.StorageField()]; !has && current.ParentVpID != entity.ParentVpID {
			changed = append(changed, s.info.Parent.StorageField())
		}
	}

	// a field removed from storage must not survive in the row
	for _, col := range s.absentColumns(entity, columns) {
		reset, ok := resetValue(col)
		if !ok {
			continue
		}
		if !sameValue(row.values[col.Field], reset) {
			changed = append(changed, col.Field)
		}
	}
	return changed, nil
}

// absentColumns returns the live columns the entity has no field for.
// Identifiers, references and ignored columns are left out.
func (s *Synchronizer) absentColumns(entity storage.Entity, columns *database.TableColumns) []database.ColumnInfo {
	skip := map[string]bool{
		strings.ToLower(s.info.IDColumn):   true,
		strings.ToLower(s.info.VpIDColumn): true,
	}
	for _, ref := range s.info.AllReferences() {
		skip[strings.ToLower(ref.Column)] = true
	}
	for field := range entity.Fields {
		skip[strings.ToLower(field)] = true
	}

	var absent []database.ColumnInfo
	for _, col := range columns.Columns {
		if skip[strings.ToLower(col.Field)] || s.info.IsIgnoredColumn(col.Field) {
			continue
		}
		absent = append(absent, col)
	}
	return absent
}

// resetValue is what an absent field is written as: NULL, or the column
// default when the column is NOT NULL. Columns whose default is computed, or
// date columns without one, are left alone.
func resetValue(col database.ColumnInfo) (any, bool) {
	if col.Nullable() {
		return nil, true
	}
	if d, ok := col.LiteralDefault(); ok {
		return d, true
	}
	if col.Default != nil || strings.Contains(col.Type, "date") || strings.Contains(col.Type, "time") {
		return nil, false
	}
	if col.IsNumeric() {
		return int64(0), true
	}
	return "", true
}

func sameValue(got, want any) bool {
	if want == nil || got == nil {
		return got == want
	}
	return utils.ToString(got) == utils.ToString(want)
}

func normalizeRef(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

// write is a resolved row ready to be written.
type write struct {
	values   map[string]any
	deferred []reference.Deferred
}

// prepareWrites resolves every insert and update before anything is
// written, so an integrity violation leaves this type untouched.
func (s *Synchronizer) prepareWrites(ctx context.Context, plan *Plan, columns *database.TableColumns) (map[string]*write, error) {
	writes := make(map[string]*write)
	lookup := reference.StorageLookup{Factory: s.env.Storages}

	for _, action := range plan.Actions {
		if action.Type == ActionDelete {
			continue
		}
		entity := action.entity.Clone()
		if err := s.env.Replacers.ToDatabase(ctx, s.info, entity.Fields); err != nil {
			return nil, s.fail(entity.VpID, err)
		}
		resolved, err := s.env.Resolver.ResolveForWrite(ctx, s.info, entity, lookup)
		if err != nil {
			return nil, s.fail(entity.VpID, err)
		}

		values := make(map[string]any, len(resolved.Values))
		for column, v := range resolved.Values {
			if column == s.info.IDColumn || s.info.IsIgnoredColumn(column) || !columns.Has(column) {
				continue
			}
			values[column] = v
		}
		for _, col := range s.absentColumns(entity, columns) {
			if reset, ok := resetValue(col); ok {
				values[col.Field] = reset
			}
		}
		writes[entity.VpID] = &write{values: values, deferred: resolved.Deferred}
	}
	return writes, nil
}

// apply executes the plan in order.
func (s *Synchronizer) apply(ctx context.Context, plan *Plan, writes map[string]*write) (*Result, error) {
	res := &Result{Plan: plan}
	table := s.env.TableName(s.info)
	db := s.env.DB.WithContext(ctx)

	for _, action := range plan.Actions {
		log := s.env.Logger.With(
			zap.String("action", string(action.Type)),
			zap.String("ref", action.Ref.String()))

		switch action.Type {
		case ActionDelete:
			err := db.Table(table).Where(s.keyColumn()+" = ?", action.Key).Delete(nil).Error
			if err != nil {
				return res, s.fail(action.Ref.VpID, fmt.Errorf("failed to delete row: %w", err))
			}
			if action.Ref.VpID != "" {
				if s.info.UsesGeneratedVpIDs {
					if err := s.env.IDs.Forget(ctx, s.info.Table, action.Ref.VpID); err != nil {
						return res, s.fail(action.Ref.VpID, err)
					}
				}
				s.env.cache.Forget(s.info.Name, action.Ref.VpID)
			}
			res.Deleted++
			log.Debug("Deleted row", zap.Any("key", action.Key))

		case ActionUpdate:
			w := writes[action.Ref.VpID]
			if len(w.values) > 0 {
				err := db.Table(table).Where(s.keyColumn()+" = ?", action.Key).Updates(w.values).Error
				if err != nil {
					return res, s.fail(action.Ref.VpID, fmt.Errorf("failed to update row: %w", err))
				}
			}
			res.Updated++
			res.Deferred = append(res.Deferred, s.pending(action.Ref, action.Key, w.deferred)...)
			s.remember(action, w)
			log.Debug("Updated row", zap.Any("key", action.Key), zap.String("reason", action.Reason))

		case ActionInsert:
			w := writes[action.Ref.VpID]
			key, err := s.insert(ctx, table, action.Ref.VpID, w.values)
			if err != nil {
				return res, s.fail(action.Ref.VpID, err)
			}
			res.Inserted++
			res.Deferred = append(res.Deferred, s.pending(action.Ref, key, w.deferred)...)
			s.remember(action, w)
			log.Debug("Inserted row", zap.Any("key", key))
		}
	}
	return res, nil
}

// remember caches the fingerprint of fully resolved writes.
func (s *Synchronizer) remember(action Action, w *write) {
	if len(w.deferred) > 0 {
		s.env.cache.Forget(s.info.Name, action.Ref.VpID)
		return
	}
	s.env.cache.Store(s.info.Name, action.Ref.VpID, Fingerprint(action.entity.Fields))
}

// insert writes a new row and registers its identifier. It returns the
// row's key.
func (s *Synchronizer) insert(ctx context.Context, table, vpID string, values map[string]any) (any, error) {
	db := s.env.DB.WithContext(ctx)
	stmt := db.Statement

	columns := sortedKeys(values)
	quoted := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = stmt.Quote(c)
		args[i] = values[c]
	}

	var sql string
	switch {
	case len(columns) > 0:
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			stmt.Quote(table), strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	case db.Dialector.Name() == "sqlite":
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", stmt.Quote(table))
	default:
		sql = fmt.Sprintf("INSERT INTO %s () VALUES ()", stmt.Quote(table))
	}

	result, err := stmt.ConnPool.ExecContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert row: %w", err)
	}

	if !s.info.UsesGeneratedVpIDs {
		return vpID, nil
	}
	pk, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}
	if err := s.env.IDs.Register(ctx, s.info.Table, vpID, pk); err != nil {
		return nil, err
	}
	return pk, nil
}

// pending converts deferred references of a written row.
func (s *Synchronizer) pending(ref storage.Ref, key any, deferred []reference.Deferred) []PendingReference {
	if len(deferred) == 0 {
		return nil
	}
	text := make(map[string]bool)
	for _, vr := range s.info.ValueReferences {
		text[vr.ValueColumn] = true
	}
	out := make([]PendingReference, 0, len(deferred))
	for _, d := range deferred {
		out = append(out, PendingReference{
			Ref:        ref,
			Table:      s.env.TableName(s.info),
			KeyColumn:  s.keyColumn(),
			Key:        key,
			Column:     d.Column,
			TargetType: d.TargetType,
			TargetVpID: d.TargetVpID,
			Text:       text[d.Column],
		})
	}
	return out
}

// rowStrings converts a database row for ignore rule evaluation.
func rowStrings(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v != nil {
			out[k] = utils.ToString(v)
		}
	}
	return out
}
