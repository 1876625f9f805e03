package storage

import (
	"testing"

	"content-history/core/schema"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(t *testing.T) (*Factory, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return NewFactory(fsys, "/vpdb", schema.Default()), fsys
}

func post(vpID, title string) Entity {
	return Entity{
		Type: "post",
		VpID: vpID,
		Fields: map[string]string{
			"post_title":  title,
			"post_status": "publish",
		},
	}
}

func TestDirectoryStorage_SaveLoadDelete(t *testing.T) {
	f, fsys := newTestFactory(t)
	posts := f.MustStorage("post")

	require.NoError(t, posts.Save(post("AAA", "Hello")))

	exists, err := afero.Exists(fsys, "/vpdb/posts/AAA.yml")
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := posts.Load("AAA", "")
	require.NoError(t, err)
	assert.Equal(t, "post", loaded.Type)
	assert.Equal(t, "Hello", loaded.Fields["post_title"])
	assert.Equal(t, "AAA", loaded.Fields["vp_id"])

	ok, err := posts.Exists("AAA", "")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, posts.Delete(post("AAA", "")))
	_, err = posts.Load("AAA", "")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting twice is a no-op
	assert.NoError(t, posts.Delete(post("AAA", "")))
}

func TestDirectoryStorage_NaturalKey(t *testing.T) {
	f, fsys := newTestFactory(t)
	options := f.MustStorage("option")

	require.NoError(t, options.Save(Entity{Type: "option", VpID: "blogname", Fields: map[string]string{"option_value": "My site"}}))

	exists, _ := afero.Exists(fsys, "/vpdb/options/blogname.yml")
	assert.True(t, exists)

	loaded, err := options.Load("blogname", "")
	require.NoError(t, err)
	assert.Equal(t, "blogname", loaded.Fields["option_name"])
	assert.NotContains(t, loaded.Fields, "vp_id")
}

func TestDirectoryStorage_All(t *testing.T) {
	f, _ := newTestFactory(t)
	posts := f.MustStorage("post")

	require.NoError(t, posts.Save(post("CCC", "c")))
	require.NoError(t, posts.Save(post("AAA", "a")))
	require.NoError(t, posts.Save(post("BBB", "b")))

	collect := func() []string {
		var ids []string
		for e, err := range posts.All() {
			require.NoError(t, err)
			ids = append(ids, e.VpID)
		}
		return ids
	}

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, collect())
	// restartable
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, collect())

	// early stop
	count := 0
	for range posts.All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestDirectoryStorage_SaveKeepsMeta(t *testing.T) {
	f, _ := newTestFactory(t)
	posts := f.MustStorage("post")
	meta := f.MustStorage("postmeta")

	require.NoError(t, posts.Save(post("P1", "first")))
	require.NoError(t, meta.Save(Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{
		"meta_key":   "color",
		"meta_value": "red",
	}}))

	require.NoError(t, posts.Save(post("P1", "renamed")))

	ok, err := meta.Exists("M1", "P1")
	require.NoError(t, err)
	assert.True(t, ok, "meta must survive owner save")
}

func TestMetaEntityStorage(t *testing.T) {
	f, _ := newTestFactory(t)
	posts := f.MustStorage("post")
	meta := f.MustStorage("postmeta").(*MetaEntityStorage)

	t.Run("OwnerMissing", func(t *testing.T) {
		err := meta.Save(Entity{Type: "postmeta", VpID: "M0", ParentVpID: "NOPE", Fields: map[string]string{"meta_key": "k"}})
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.ErrorIs(t, err, ErrOwnerNotFound)
	})

	require.NoError(t, posts.Save(post("P1", "owner")))

	t.Run("SaveAndLoad", func(t *testing.T) {
		require.NoError(t, meta.Save(Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{
			"meta_key":   "_thumbnail_id",
			"meta_value": "P2",
		}}))

		loaded, err := meta.Load("M1", "P1")
		require.NoError(t, err)
		assert.Equal(t, "P1", loaded.ParentVpID)
		assert.Equal(t, "P1", loaded.Fields["vp_post_id"])
		assert.Equal(t, "P2", loaded.Fields["meta_value"])

		// owner lookup without parent
		loaded, err = meta.Load("M1", "")
		require.NoError(t, err)
		assert.Equal(t, "P1", loaded.ParentVpID)
	})

	t.Run("ChangedKeyReplacesEntry", func(t *testing.T) {
		require.NoError(t, meta.Save(Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{
			"meta_key":   "renamed",
			"meta_value": "x",
		}}))
		entities, err := meta.ForOwner("P1")
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "renamed", entities[0].Fields["meta_key"])
	})

	t.Run("All", func(t *testing.T) {
		require.NoError(t, posts.Save(post("P2", "other")))
		require.NoError(t, meta.Save(Entity{Type: "postmeta", VpID: "M2", ParentVpID: "P2", Fields: map[string]string{"meta_key": "a"}}))

		var ids []string
		for e, err := range meta.All() {
			require.NoError(t, err)
			ids = append(ids, e.VpID)
		}
		assert.Equal(t, []string{"M1", "M2"}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, meta.Delete(Entity{Type: "postmeta", VpID: "M2", ParentVpID: "P2"}))
		ok, err := meta.Exists("M2", "P2")
		require.NoError(t, err)
		assert.False(t, ok)

		// owner itself untouched
		ok, err = posts.Exists("P2", "")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.NoError(t, meta.Delete(Entity{Type: "postmeta", VpID: "M2", ParentVpID: "P2"}))
		assert.NoError(t, meta.Delete(Entity{Type: "postmeta", VpID: "M9", ParentVpID: "GONE"}))
	})
}

func TestFactory_RefsForPath(t *testing.T) {
	f, _ := newTestFactory(t)
	require.NoError(t, f.MustStorage("post").Save(post("P1", "owner")))
	require.NoError(t, f.MustStorage("postmeta").Save(Entity{Type: "postmeta", VpID: "M1", ParentVpID: "P1", Fields: map[string]string{"meta_key": "a"}}))

	refs, err := f.RefsForPath("posts/P1.yml")
	require.NoError(t, err)
	assert.Equal(t, []Ref{
		{Type: "post", VpID: "P1"},
		{Type: "postmeta", VpID: "M1", ParentVpID: "P1"},
	}, refs)

	refs, err = f.RefsForPath("posts/GONE.yml")
	require.NoError(t, err)
	assert.Equal(t, []Ref{{Type: "post", VpID: "GONE"}}, refs)

	refs, err = f.RefsForPath("uploads/image.png")
	require.NoError(t, err)
	assert.Empty(t, refs)

	p, err := f.PathFor(Ref{Type: "postmeta", VpID: "M1", ParentVpID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, "posts/P1.yml", p)
}
