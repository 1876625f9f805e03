package reconcile_test

import (
	"context"
	"testing"

	"content-history/core/reconcile"
	"content-history/core/reconcile/reconciletest"
	"content-history/core/reference"
	"content-history/core/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncAll(t *testing.T, f *reconciletest.Fixture) []*reconcile.Result {
	t.Helper()
	results, err := f.Env.SynchronizeAll(context.Background(), nil, nil)
	require.NoError(t, err)
	return results
}

func syncType(t *testing.T, f *reconciletest.Fixture, entityType string, cs *reconcile.ChangeSet) *reconcile.Result {
	t.Helper()
	s, err := f.Env.Synchronizer(entityType)
	require.NoError(t, err)
	res, err := s.Synchronize(context.Background(), reconcile.ModeEverything, cs)
	require.NoError(t, err)
	return res
}

func TestSynchronize_InsertRoundTrip(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t,
		reconciletest.User("U1", "alice"),
		reconciletest.Post("P1", "Hello", "U1"),
	)

	syncAll(t, f)

	users := f.Rows(t, "users")
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0]["user_login"])

	posts := f.Rows(t, "posts")
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello", posts[0]["post_title"])
	assert.Equal(t, "publish", posts[0]["post_status"])
	assert.EqualValues(t, f.PK(t, "user", "U1"), posts[0]["post_author"])
	assert.EqualValues(t, 0, posts[0]["post_parent"])
	assert.EqualValues(t, f.PK(t, "post", "P1"), posts[0]["ID"])
}

func TestSynchronize_DeleteRoundTrip(t *testing.T) {
	f := reconciletest.New(t)
	p1 := reconciletest.Post("P1", "One", "0")
	p2 := reconciletest.Post("P2", "Two", "0")
	f.Save(t, p1, p2)
	syncType(t, f, "post", nil)
	require.EqualValues(t, 2, f.Count(t, "posts"))
	keep := f.PK(t, "post", "P2")

	f.Delete(t, p1)
	res := syncType(t, f, "post", nil)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 0, res.Inserted+res.Updated)

	posts := f.Rows(t, "posts")
	require.Len(t, posts, 1)
	assert.EqualValues(t, keep, posts[0]["ID"])

	_, ok, err := f.Env.IDs.ResolveToPrimaryKey(context.Background(), "posts", "P1")
	require.NoError(t, err)
	assert.False(t, ok, "mapping of a destroyed entity is removed")
}

func TestSynchronize_IgnoredRowsSurvive(t *testing.T) {
	f := reconciletest.New(t)
	require.NoError(t, f.DB.Exec("INSERT INTO wp_options (option_name, option_value) VALUES ('cron', 'a:0:{}'), ('_transient_feed', 'x'), ('stale', 'y')").Error)
	f.Save(t, reconciletest.Option("blogname", "My Site"))

	res := syncType(t, f, "option", nil)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Plan.Summary.Ignored)

	var names []string
	for _, row := range f.Rows(t, "options") {
		names = append(names, row["option_name"].(string))
	}
	assert.ElementsMatch(t, []string{"cron", "_transient_feed", "blogname"}, names)
}

func TestSynchronize_IgnoredStoredEntityNotInserted(t *testing.T) {
	f := reconciletest.New(t)
	draft := reconciletest.Post("P1", "Draft", "0")
	draft.Fields["post_status"] = "auto-draft"
	f.Save(t, draft)

	res := syncType(t, f, "post", nil)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Plan.Summary.Ignored)
	assert.EqualValues(t, 0, f.Count(t, "posts"))
}

func TestSynchronize_Idempotent(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t,
		reconciletest.User("U1", "alice"),
		reconciletest.Post("P1", "Hello", "U1"),
		reconciletest.Post("P2", "World", "U1"),
		reconciletest.Comment("C1", "P1", "Nice"),
		reconciletest.PostMeta("M1", "P1", "_thumbnail_id", "P2"),
		reconciletest.Option("page_on_front", "P1"),
	)
	syncAll(t, f)
	before := f.Changes(t)

	for _, res := range syncAll(t, f) {
		assert.Zero(t, res.Mutations(), res.Plan.EntityType)
	}
	assert.Equal(t, before, f.Changes(t))

	// without the comparison cache every entity is diffed and still matches
	f.Env.Reset()
	for _, res := range syncAll(t, f) {
		assert.Zero(t, res.Mutations(), res.Plan.EntityType)
		assert.Empty(t, res.Plan.Actions)
	}
	assert.Equal(t, before, f.Changes(t))
}

func TestSynchronize_Update(t *testing.T) {
	f := reconciletest.New(t)
	post := reconciletest.Post("P1", "Hello", "0")
	f.Save(t, post)
	syncType(t, f, "post", nil)

	post.Fields["post_title"] = "Changed"
	f.Save(t, post)
	res := syncType(t, f, "post", nil)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Plan.Actions, 1)
	assert.Equal(t, "changed: post_title", res.Plan.Actions[0].Reason)
	assert.Equal(t, "Changed", f.Rows(t, "posts")[0]["post_title"])
}

func TestSynchronize_ExternalEditNeedsReset(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t, reconciletest.Post("P1", "Hello", "0"))
	syncType(t, f, "post", nil)

	require.NoError(t, f.DB.Exec("UPDATE wp_posts SET post_title = 'tampered'").Error)

	s, err := f.Env.Synchronizer("post")
	require.NoError(t, err)
	res, err := s.Synchronize(context.Background(), reconcile.ModeEverything, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Updated, "compared entities are not diffed again")

	s.Reset()
	res, err = s.Synchronize(context.Background(), reconcile.ModeEverything, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, "Hello", f.Rows(t, "posts")[0]["post_title"])
}

func TestSynchronize_RemovedFieldIsReset(t *testing.T) {
	t.Run("NotNullColumnGetsDefault", func(t *testing.T) {
		f := reconciletest.New(t)
		original := reconciletest.Post("P1", "Hello", "0")
		f.Save(t, original)
		syncType(t, f, "post", nil)

		extended := original.Clone()
		extended.Fields["post_excerpt"] = "added later"
		f.Save(t, extended)
		syncType(t, f, "post", nil)
		require.Equal(t, "added later", f.Rows(t, "posts")[0]["post_excerpt"])

		f.Save(t, original)
		f.Env.Reset()
		res := syncType(t, f, "post", nil)
		assert.Equal(t, 1, res.Updated)
		require.Len(t, res.Plan.Actions, 1)
		assert.Equal(t, "changed: post_excerpt", res.Plan.Actions[0].Reason)
		assert.Equal(t, "", f.Rows(t, "posts")[0]["post_excerpt"])

		// nothing left to reset
		f.Env.Reset()
		res = syncType(t, f, "post", nil)
		assert.Zero(t, res.Mutations())
	})

	t.Run("NullableColumnGetsNull", func(t *testing.T) {
		f := reconciletest.New(t)
		f.Save(t,
			reconciletest.Post("P1", "Owner", "0"),
			reconciletest.PostMeta("M1", "P1", "color", "v"),
		)
		syncAll(t, f)
		require.Equal(t, "v", f.Rows(t, "postmeta")[0]["meta_value"])

		f.Save(t, storage.Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{
			"meta_key": "color",
		}})
		res := syncType(t, f, "postmeta", nil)
		assert.Equal(t, 1, res.Updated)

		rows := f.Rows(t, "postmeta")
		require.Len(t, rows, 1)
		assert.Equal(t, "color", rows[0]["meta_key"])
		assert.Nil(t, rows[0]["meta_value"])
	})

	t.Run("InsertWritesNullForAbsentField", func(t *testing.T) {
		f := reconciletest.New(t)
		f.Save(t,
			reconciletest.Post("P1", "Owner", "0"),
			storage.Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{"meta_key": "flag"}},
		)
		syncAll(t, f)

		rows := f.Rows(t, "postmeta")
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0]["meta_value"])
		assert.Equal(t, "", f.Rows(t, "posts")[0]["post_excerpt"])
	})
}

func TestSynchronize_ForgetsIdentifiersOfMissingRows(t *testing.T) {
	f := reconciletest.New(t)
	ctx := context.Background()
	f.Save(t, reconciletest.User("U1", "alice"))
	syncAll(t, f)
	require.NoError(t, f.Env.IDs.Register(ctx, "users", "GONE", 999))

	syncType(t, f, "user", nil)

	_, ok, err := f.Env.IDs.ResolveToPrimaryKey(ctx, "users", "GONE")
	require.NoError(t, err)
	assert.False(t, ok)
	pk, ok, err := f.Env.IDs.ResolveToPrimaryKey(ctx, "users", "U1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.PK(t, "user", "U1"), pk)

	// a selective pass leaves identifiers alone
	require.NoError(t, f.Env.IDs.Register(ctx, "users", "GONE", 999))
	syncType(t, f, "user", reconcile.NewChangeSet(storage.Ref{Type: "user", VpID: "U1"}))
	_, ok, err = f.Env.IDs.ResolveToPrimaryKey(ctx, "users", "GONE")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSynchronize_SelectiveScope(t *testing.T) {
	f := reconciletest.New(t)
	a := reconciletest.Post("A", "a", "0")
	b := reconciletest.Post("B", "b", "0")
	c := reconciletest.Post("C", "c", "0")
	d := reconciletest.Post("D", "d", "0")
	f.Save(t, a, b, c, d)
	syncType(t, f, "post", nil)

	for _, p := range []storage.Entity{a, b, c} {
		p.Fields["post_title"] += "-changed"
		f.Save(t, p)
	}
	f.Delete(t, d)
	f.Save(t, reconciletest.Post("E", "e", "0"))

	cs := reconcile.NewChangeSet(a.Ref(), b.Ref())
	res := syncType(t, f, "post", cs)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 0, res.Inserted+res.Deleted)
	assert.Equal(t, 2, res.Plan.Summary.Scope)

	titles := map[int64]string{}
	for _, row := range f.Rows(t, "posts") {
		titles[row["ID"].(int64)] = row["post_title"].(string)
	}
	assert.Equal(t, map[int64]string{
		f.PK(t, "post", "A"): "a-changed",
		f.PK(t, "post", "B"): "b-changed",
		f.PK(t, "post", "C"): "c",
		f.PK(t, "post", "D"): "d",
	}, titles)
}

func TestSynchronize_SelectiveDelete(t *testing.T) {
	f := reconciletest.New(t)
	a := reconciletest.Post("A", "a", "0")
	b := reconciletest.Post("B", "b", "0")
	f.Save(t, a, b)
	syncType(t, f, "post", nil)

	f.Delete(t, a, b)
	res := syncType(t, f, "post", reconcile.NewChangeSet(a.Ref()))
	assert.Equal(t, 1, res.Deleted)
	require.Len(t, f.Rows(t, "posts"), 1)
	assert.EqualValues(t, f.PK(t, "post", "B"), f.Rows(t, "posts")[0]["ID"])
}

func TestSynchronize_ValueReference(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t,
		reconciletest.Post("P1", "Owner", "0"),
		reconciletest.Post("P2", "Image", "0"),
		reconciletest.PostMeta("M1", "P1", "_thumbnail_id", "P2"),
		reconciletest.PostMeta("M2", "P1", "color", "P2"),
	)
	syncAll(t, f)

	meta := map[string]map[string]any{}
	for _, row := range f.Rows(t, "postmeta") {
		meta[row["meta_key"].(string)] = row
	}
	require.Len(t, meta, 2)
	assert.Equal(t, "2", meta["_thumbnail_id"]["meta_value"])
	assert.EqualValues(t, f.PK(t, "post", "P2"), 2)
	assert.EqualValues(t, f.PK(t, "post", "P1"), meta["_thumbnail_id"]["post_id"])
	assert.Equal(t, "P2", meta["color"]["meta_value"], "plain meta values are not references")
}

func TestSynchronize_DanglingReference(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t,
		reconciletest.Post("P1", "Owner", "0"),
		reconciletest.PostMeta("M1", "P1", "_thumbnail_id", "MISSING"),
		reconciletest.PostMeta("M2", "P1", "color", "red"),
	)
	syncType(t, f, "post", nil)

	s, err := f.Env.Synchronizer("postmeta")
	require.NoError(t, err)
	_, err = s.Synchronize(context.Background(), reconcile.ModeEverything, nil)
	require.Error(t, err)
	assert.True(t, reconcile.IsIntegrityError(err))
	assert.ErrorIs(t, err, reference.ErrReferentialIntegrity)

	var syncErr *reconcile.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "postmeta", syncErr.EntityType)
	assert.Equal(t, "M1", syncErr.VpID)

	// nothing of the failing type was written
	assert.EqualValues(t, 0, f.Count(t, "postmeta"))
}

func TestSynchronize_DeferredSelfReference(t *testing.T) {
	f := reconciletest.New(t)
	child := reconciletest.Post("A-CHILD", "Child", "0")
	child.Fields["vp_post_parent"] = "Z-PARENT"
	f.Save(t, child, reconciletest.Post("Z-PARENT", "Parent", "0"))

	res := syncType(t, f, "post", nil)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.Deferred)

	rows := f.Rows(t, "posts")
	parentPK := f.PK(t, "post", "Z-PARENT")
	for _, row := range rows {
		if row["post_title"] == "Child" {
			assert.EqualValues(t, parentPK, row["post_parent"])
		}
	}

	// the child row verifies as unchanged afterwards
	f.Env.Reset()
	res = syncType(t, f, "post", nil)
	assert.Zero(t, res.Mutations())
}

func TestSynchronize_Replacers(t *testing.T) {
	f := reconciletest.New(t)
	image := reconciletest.Post("IMG", "Image", "0")
	post := reconciletest.Post("P1", "Gallery", "0")
	post.Fields["post_content"] = `See <<[site-url]>>/about [gallery ids="IMG"]`
	f.Save(t, image)
	syncType(t, f, "post", nil)
	f.Save(t, post)
	syncType(t, f, "post", nil)

	var content string
	for _, row := range f.Rows(t, "posts") {
		if row["post_title"] == "Gallery" {
			content = row["post_content"].(string)
		}
	}
	imgPK := f.PK(t, "post", "IMG")
	assert.Equal(t, `See https://example.test/about [gallery ids="`+itoa(imgPK)+`"]`, content)

	f.Env.Reset()
	res := syncType(t, f, "post", nil)
	assert.Zero(t, res.Mutations())
}

func TestSynchronize_UnknownColumnsDropped(t *testing.T) {
	f := reconciletest.New(t)
	post := reconciletest.Post("P1", "Hello", "0")
	post.Fields["legacy_column"] = "x"
	post.Fields["comment_count"] = "7"
	f.Save(t, post)

	res := syncType(t, f, "post", nil)
	assert.Equal(t, 1, res.Inserted)
	assert.EqualValues(t, 0, f.Rows(t, "posts")[0]["comment_count"])

	f.Env.Reset()
	res = syncType(t, f, "post", nil)
	assert.Zero(t, res.Mutations())
}

func TestSynchronize_OptionsNaturalKey(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t,
		reconciletest.Post("P1", "Front", "0"),
		reconciletest.Option("page_on_front", "P1"),
		reconciletest.Option("blogname", "Site"),
	)
	syncAll(t, f)

	values := map[string]string{}
	for _, row := range f.Rows(t, "options") {
		values[row["option_name"].(string)] = row["option_value"].(string)
	}
	assert.Equal(t, map[string]string{
		"page_on_front": itoa(f.PK(t, "post", "P1")),
		"blogname":      "Site",
	}, values)
}

func TestEnvironment_PlanAll(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t, reconciletest.User("U1", "alice"), reconciletest.Post("P1", "Hello", "U1"))

	plans, err := f.Env.PlanAll(context.Background(), []string{"post", "user"}, nil)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "user", plans[0].EntityType)
	assert.Equal(t, 1, plans[1].Summary.Inserts)
	assert.EqualValues(t, 0, f.Count(t, "posts"), "planning writes nothing")
}

func TestEnvironment_SynchronizeAllStopsAtFirstError(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t,
		reconciletest.User("U1", "alice"),
		reconciletest.Post("P1", "Hello", "GHOST"),
		reconciletest.Option("blogname", "Site"),
	)

	results, err := f.Env.SynchronizeAll(context.Background(), nil, nil)
	require.Error(t, err)

	var syncErr *reconcile.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "post", syncErr.EntityType)
	assert.Equal(t, "P1", syncErr.VpID)

	require.NotEmpty(t, results)
	assert.Equal(t, "user", results[0].Plan.EntityType)
	for _, res := range results {
		assert.NotEqual(t, "post", res.Plan.EntityType)
	}
	assert.EqualValues(t, 1, f.Count(t, "users"))
	assert.EqualValues(t, 0, f.Count(t, "options"), "later types are not synchronized")
}

func TestEnvironment_SynchronizeAllWithChangeSet(t *testing.T) {
	f := reconciletest.New(t)
	f.Save(t, reconciletest.User("U1", "alice"), reconciletest.Post("P1", "Hello", "U1"))

	cs := reconcile.NewChangeSet(storage.Ref{Type: "user", VpID: "U1"})
	results, err := f.Env.SynchronizeAll(context.Background(), nil, cs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 1, f.Count(t, "users"))
	assert.EqualValues(t, 0, f.Count(t, "posts"))

	_, err = f.Env.SynchronizeAll(context.Background(), []string{"nope"}, nil)
	assert.EqualError(t, err, `synchronize nope: unknown entity type "nope"`)
}
