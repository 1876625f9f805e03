package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_SynchronizationOrder(t *testing.T) {
	order := Default().SynchronizationOrder()

	index := make(map[string]int, len(order))
	for i, name := range order {
		index[name] = i
	}

	assert.Len(t, order, 10)
	assert.Less(t, index["user"], index["post"])
	assert.Less(t, index["post"], index["comment"])
	assert.Less(t, index["post"], index["postmeta"])
	assert.Less(t, index["term"], index["termmeta"])
	assert.Less(t, index["comment"], index["commentmeta"])
	assert.Equal(t, "option", order[len(order)-1])
}

func TestInfo_Sort(t *testing.T) {
	info := Default()
	assert.Equal(t, []string{"user", "post", "comment", "option"},
		info.Sort([]string{"option", "comment", "post", "user", "unknown"}))
}

func TestIgnoreRule_Matches(t *testing.T) {
	rule := IgnoreRule{Column: "option_name", Values: []string{"cron", "_transient_%"}}

	tests := []struct {
		name   string
		fields map[string]string
		want   bool
	}{
		{"Exact", map[string]string{"option_name": "cron"}, true},
		{"Prefix", map[string]string{"option_name": "_transient_feed"}, true},
		{"Other", map[string]string{"option_name": "blogname"}, false},
		{"MissingColumn", map[string]string{"meta_key": "cron"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rule.Matches(tt.fields))
		})
	}
}

func TestEntityInfo_KeyColumn(t *testing.T) {
	info := Default()
	assert.Equal(t, "ID", info.MustEntity("post").KeyColumn())
	assert.Equal(t, "option_name", info.MustEntity("option").KeyColumn())
	assert.True(t, info.MustEntity("postmeta").IsMeta())
	assert.Equal(t, "vp_post_author", info.MustEntity("post").References[0].StorageField())
}

func TestInfo_ReferrersOf(t *testing.T) {
	info := Default()

	var names []string
	for _, e := range info.ReferrersOf("post") {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"post", "postmeta", "comment", "option"}, names)

	var meta []string
	for _, e := range info.MetaOf("term") {
		meta = append(meta, e.Name)
	}
	assert.Equal(t, []string{"term_taxonomy", "termmeta"}, meta)
}

func TestParse(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		info, err := Parse([]byte(`
entities:
  - name: author
    table: authors
    id_column: id
    generated_vpids: true
  - name: book
    table: books
    id_column: id
    generated_vpids: true
    references:
      - column: author_id
        target: author
`))
		require.NoError(t, err)
		assert.Equal(t, []string{"author", "book"}, info.SynchronizationOrder())
		assert.Equal(t, "books", info.MustEntity("book").Directory)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		_, err := Parse([]byte(`
entities:
  - name: book
    table: books
    id_column: id
    generated_vpids: true
    references:
      - column: author_id
        target: author
`))
		assert.ErrorContains(t, err, "unknown entity")
	})

	t.Run("NaturalKeyWithoutColumn", func(t *testing.T) {
		_, err := Parse([]byte(`
entities:
  - name: setting
    table: settings
    id_column: id
`))
		assert.ErrorContains(t, err, "vpid_column")
	})
}
