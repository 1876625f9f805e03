package reference

import (
	"context"
	"testing"

	"content-history/core/schema"
	"content-history/core/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIDs map[string]map[string]int64

func (f fakeIDs) ResolveToPrimaryKey(_ context.Context, table, vpID string) (int64, bool, error) {
	pk, ok := f[table][vpID]
	return pk, ok, nil
}

func (f fakeIDs) ResolveToVpID(_ context.Context, table string, pk int64) (string, bool, error) {
	for vpID, id := range f[table] {
		if id == pk {
			return vpID, true, nil
		}
	}
	return "", false, nil
}

type fixture struct {
	info     *schema.Info
	factory  *storage.Factory
	ids      fakeIDs
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	info := schema.Default()
	ids := fakeIDs{
		"users": {"U1": 1},
		"posts": {"P1": 10, "P2": 11},
	}
	return &fixture{
		info:     info,
		factory:  storage.NewFactory(afero.NewMemMapFs(), "/vpdb", info),
		ids:      ids,
		resolver: NewResolver(info, ids),
	}
}

func TestResolveForWrite_Mapped(t *testing.T) {
	f := newFixture(t)
	post := storage.Entity{Type: "post", VpID: "P2", Fields: map[string]string{
		"vp_id":          "P2",
		"ID":             "99",
		"post_title":     "Child",
		"vp_post_author": "U1",
		"vp_post_parent": "P1",
	}}

	got, err := f.resolver.ResolveForWrite(context.Background(), f.info.MustEntity("post"), post, StorageLookup{Factory: f.factory})
	require.NoError(t, err)
	assert.Empty(t, got.Deferred)
	assert.Equal(t, map[string]any{
		"post_title":  "Child",
		"post_author": int64(1),
		"post_parent": int64(10),
	}, got.Values)
}

func TestResolveForWrite_EmptyReference(t *testing.T) {
	f := newFixture(t)
	post := storage.Entity{Type: "post", VpID: "P1", Fields: map[string]string{
		"vp_post_author": "U1",
		"vp_post_parent": "0",
	}}

	got, err := f.resolver.ResolveForWrite(context.Background(), f.info.MustEntity("post"), post, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Values["post_parent"])
}

func TestResolveForWrite_Deferred(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.factory.MustStorage("post").Save(storage.Entity{Type: "post", VpID: "P3", Fields: map[string]string{}}))

	post := storage.Entity{Type: "post", VpID: "P4", Fields: map[string]string{
		"vp_post_author": "U1",
		"vp_post_parent": "P3",
	}}

	got, err := f.resolver.ResolveForWrite(context.Background(), f.info.MustEntity("post"), post, StorageLookup{Factory: f.factory})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Values["post_parent"])
	require.Len(t, got.Deferred, 1)
	assert.Equal(t, Deferred{Column: "post_parent", TargetType: "post", TargetVpID: "P3"}, got.Deferred[0])

	// once the target is mapped the deferred reference resolves
	f.ids["posts"]["P3"] = 12
	pk, ok, err := f.resolver.ResolveDeferred(context.Background(), got.Deferred[0])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), pk)
}

func TestResolveForWrite_Dangling(t *testing.T) {
	f := newFixture(t)
	comment := storage.Entity{Type: "comment", VpID: "C1", Fields: map[string]string{
		"vp_comment_post_ID": "GONE",
		"comment_content":    "hi",
	}}

	_, err := f.resolver.ResolveForWrite(context.Background(), f.info.MustEntity("comment"), comment, StorageLookup{Factory: f.factory})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReferentialIntegrity)

	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "comment", dangling.EntityType)
	assert.Equal(t, "C1", dangling.VpID)
	assert.Equal(t, "vp_comment_post_ID", dangling.Field)
	assert.Equal(t, "post", dangling.TargetType)
	assert.Equal(t, "GONE", dangling.TargetVpID)
}

func TestResolveForWrite_MetaAndValueReference(t *testing.T) {
	f := newFixture(t)
	meta := storage.Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{
		"meta_key":   "_thumbnail_id",
		"meta_value": "P2",
	}}

	got, err := f.resolver.ResolveForWrite(context.Background(), f.info.MustEntity("postmeta"), meta, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Values["post_id"])
	assert.Equal(t, "11", got.Values["meta_value"])
	assert.Equal(t, "_thumbnail_id", got.Values["meta_key"])
}

func TestResolveForWrite_NaturalKey(t *testing.T) {
	f := newFixture(t)
	option := storage.Entity{Type: "option", VpID: "page_on_front", Fields: map[string]string{
		"option_name":  "page_on_front",
		"option_value": "P1",
	}}

	got, err := f.resolver.ResolveForWrite(context.Background(), f.info.MustEntity("option"), option, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"option_name": "page_on_front", "option_value": "10"}, got.Values)
}

func TestResolveForRead(t *testing.T) {
	f := newFixture(t)

	t.Run("Post", func(t *testing.T) {
		row := map[string]any{
			"ID":            int64(11),
			"post_title":    []byte("Child"),
			"post_author":   int64(1),
			"post_parent":   int64(0),
			"comment_count": int64(3),
			"post_excerpt":  nil,
		}
		got, err := f.resolver.ResolveForRead(context.Background(), f.info.MustEntity("post"), row)
		require.NoError(t, err)
		assert.Equal(t, "P2", got.VpID)
		assert.Equal(t, map[string]string{
			"vp_id":          "P2",
			"post_title":     "Child",
			"vp_post_author": "U1",
			"vp_post_parent": "0",
		}, got.Fields)
	})

	t.Run("Unmapped", func(t *testing.T) {
		got, err := f.resolver.ResolveForRead(context.Background(), f.info.MustEntity("post"), map[string]any{"ID": int64(500)})
		require.NoError(t, err)
		assert.Empty(t, got.VpID)
	})

	t.Run("MetaWithValueReference", func(t *testing.T) {
		row := map[string]any{
			"meta_id":    int64(7),
			"post_id":    int64(10),
			"meta_key":   "_thumbnail_id",
			"meta_value": "11",
		}
		f.ids["postmeta"] = map[string]int64{"M1": 7}
		got, err := f.resolver.ResolveForRead(context.Background(), f.info.MustEntity("postmeta"), row)
		require.NoError(t, err)
		assert.Equal(t, "M1", got.VpID)
		assert.Equal(t, "P1", got.ParentVpID)
		assert.Equal(t, "P2", got.Fields["meta_value"])
	})

	t.Run("NaturalKey", func(t *testing.T) {
		row := map[string]any{"option_id": int64(3), "option_name": "blogname", "option_value": "Site", "autoload": "yes"}
		got, err := f.resolver.ResolveForRead(context.Background(), f.info.MustEntity("option"), row)
		require.NoError(t, err)
		assert.Equal(t, "blogname", got.VpID)
		assert.Equal(t, map[string]string{"option_name": "blogname", "option_value": "Site"}, got.Fields)
	})
}

func TestFinder_ReferencesTo(t *testing.T) {
	f := newFixture(t)
	posts := f.factory.MustStorage("post")
	comments := f.factory.MustStorage("comment")
	postmeta := f.factory.MustStorage("postmeta")

	require.NoError(t, posts.Save(storage.Entity{Type: "post", VpID: "P1", Fields: map[string]string{"vp_post_parent": "0"}}))
	require.NoError(t, posts.Save(storage.Entity{Type: "post", VpID: "P2", Fields: map[string]string{"vp_post_parent": "P1"}}))
	require.NoError(t, comments.Save(storage.Entity{Type: "comment", VpID: "C1", Fields: map[string]string{"vp_comment_post_ID": "P1"}}))
	require.NoError(t, comments.Save(storage.Entity{Type: "comment", VpID: "C2", Fields: map[string]string{"vp_comment_post_ID": "P2"}}))
	require.NoError(t, postmeta.Save(storage.Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P2", Fields: map[string]string{
		"meta_key":   "_thumbnail_id",
		"meta_value": "P1",
	}}))

	got, err := NewFinder(f.factory).ReferencesTo(context.Background(), "post", "P1")
	require.NoError(t, err)

	var refs []string
	for _, r := range got {
		refs = append(refs, r.Ref.String()+":"+r.Field)
	}
	assert.ElementsMatch(t, []string{
		"post/P2:vp_post_parent",
		"postmeta/P2/M1:meta_value",
		"comment/C1:vp_comment_post_ID",
	}, refs)
}

func TestFinder_MissingTargets(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.factory.MustStorage("post").Save(storage.Entity{Type: "post", VpID: "P1", Fields: map[string]string{}}))
	finder := NewFinder(f.factory)

	comment := storage.Entity{Type: "comment", VpID: "C1", Fields: map[string]string{
		"vp_comment_post_ID": "P1",
		"vp_comment_parent":  "0",
		"vp_user_id":         "GONE",
	}}
	missing, err := finder.MissingTargets(context.Background(), comment)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "vp_user_id", missing[0].Field)
	assert.Equal(t, "user", missing[0].TargetType)
	assert.ErrorIs(t, missing[0], ErrReferentialIntegrity)

	option := storage.Entity{Type: "option", VpID: "page_on_front", Fields: map[string]string{
		"option_name":  "page_on_front",
		"option_value": "P9",
	}}
	missing, err = finder.MissingTargets(context.Background(), option)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "option_value", missing[0].Field)
	assert.Equal(t, "P9", missing[0].TargetVpID)

	_, err = finder.MissingTargets(context.Background(), storage.Entity{Type: "nope"})
	assert.Error(t, err)
}
