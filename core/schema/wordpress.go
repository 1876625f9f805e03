package schema

// Default returns the built-in WordPress schema.
func Default() *Info {
	info, err := New(wordpressEntities(), []Shortcode{
		{Name: "gallery", Attributes: map[string]string{"ids": "post", "include": "post", "exclude": "post"}},
		{Name: "playlist", Attributes: map[string]string{"ids": "post"}},
	})
	if err != nil {
		panic("schema: invalid built-in schema: " + err.Error())
	}
	return info
}

func wordpressEntities() []*EntityInfo {
	return []*EntityInfo{
		{
			Name:               "user",
			Table:              "users",
			IDColumn:           "ID",
			UsesGeneratedVpIDs: true,
			Directory:          "users",
		},
		{
			Name:               "usermeta",
			Table:              "usermeta",
			IDColumn:           "umeta_id",
			UsesGeneratedVpIDs: true,
			Directory:          "users",
			Parent:             &Reference{Column: "user_id", Target: "user"},
			MetaKeyColumn:      "meta_key",
			IgnoredEntities: []IgnoreRule{
				{Column: "meta_key", Values: []string{"session_tokens", "wp_dashboard_quick_press_last_post_id", "community-events-location"}},
			},
		},
		{
			Name:               "post",
			Table:              "posts",
			IDColumn:           "ID",
			UsesGeneratedVpIDs: true,
			Directory:          "posts",
			References: []Reference{
				{Column: "post_author", Target: "user"},
				{Column: "post_parent", Target: "post"},
			},
			IgnoredEntities: []IgnoreRule{
				{Column: "post_status", Values: []string{"auto-draft"}},
				{Column: "post_type", Values: []string{"revision"}},
			},
			IgnoredColumns:  []string{"comment_count"},
			ShortcodeFields: []string{"post_content", "post_excerpt"},
		},
		{
			Name:               "postmeta",
			Table:              "postmeta",
			IDColumn:           "meta_id",
			UsesGeneratedVpIDs: true,
			Directory:          "posts",
			Parent:             &Reference{Column: "post_id", Target: "post"},
			MetaKeyColumn:      "meta_key",
			ValueReferences: []ValueReference{
				{SourceColumn: "meta_key", ValueColumn: "meta_value", Targets: map[string]string{
					"_thumbnail_id":        "post",
					"_menu_item_object_id": "post",
				}},
			},
			IgnoredEntities: []IgnoreRule{
				{Column: "meta_key", Values: []string{"_edit_lock", "_edit_last", "_pingme", "_encloseme"}},
			},
		},
		{
			Name:               "term",
			Table:              "terms",
			IDColumn:           "term_id",
			UsesGeneratedVpIDs: true,
			Directory:          "terms",
		},
		{
			Name:               "term_taxonomy",
			Table:              "term_taxonomy",
			IDColumn:           "term_taxonomy_id",
			UsesGeneratedVpIDs: true,
			Directory:          "terms",
			Parent:             &Reference{Column: "term_id", Target: "term"},
			MetaKeyColumn:      "taxonomy",
			References: []Reference{
				{Column: "parent", Target: "term"},
			},
			IgnoredColumns: []string{"count"},
		},
		{
			Name:               "termmeta",
			Table:              "termmeta",
			IDColumn:           "meta_id",
			UsesGeneratedVpIDs: true,
			Directory:          "terms",
			Parent:             &Reference{Column: "term_id", Target: "term"},
			MetaKeyColumn:      "meta_key",
		},
		{
			Name:               "comment",
			Table:              "comments",
			IDColumn:           "comment_ID",
			UsesGeneratedVpIDs: true,
			Directory:          "comments",
			References: []Reference{
				{Column: "comment_post_ID", Target: "post"},
				{Column: "user_id", Target: "user"},
				{Column: "comment_parent", Target: "comment"},
			},
			IgnoredEntities: []IgnoreRule{
				{Column: "comment_approved", Values: []string{"spam"}},
			},
		},
		{
			Name:               "commentmeta",
			Table:              "commentmeta",
			IDColumn:           "meta_id",
			UsesGeneratedVpIDs: true,
			Directory:          "comments",
			Parent:             &Reference{Column: "comment_id", Target: "comment"},
			MetaKeyColumn:      "meta_key",
		},
		{
			Name:               "option",
			Table:              "options",
			IDColumn:           "option_id",
			VpIDColumn:         "option_name",
			UsesGeneratedVpIDs: false,
			Directory:          "options",
			ValueReferences: []ValueReference{
				{SourceColumn: "option_name", ValueColumn: "option_value", Targets: map[string]string{
					"page_on_front":  "post",
					"page_for_posts": "post",
					"site_icon":      "post",
				}},
			},
			IgnoredEntities: []IgnoreRule{
				{Column: "option_name", Values: []string{
					"_transient_%",
					"_site_transient_%",
					"siteurl",
					"home",
					"cron",
					"db_upgraded",
					"recently_edited",
					"auto_updater.lock",
					"can_compress_scripts",
					"auto_core_update_notified",
				}},
			},
			IgnoredColumns: []string{"autoload"},
		},
	}
}
