package replacer

import (
	"context"
	"strings"

	"content-history/core/schema"
)

// SiteURLPlaceholder stands for the site's base URL in storage.
const SiteURLPlaceholder = "<<[site-url]>>"

// AbsoluteURLReplacer swaps the live site URL for SiteURLPlaceholder.
type AbsoluteURLReplacer struct {
	siteURL string
}

// NewAbsoluteURLReplacer creates a replacer for the given base URL.
// A trailing slash is ignored.
func NewAbsoluteURLReplacer(siteURL string) *AbsoluteURLReplacer {
	return &AbsoluteURLReplacer{siteURL: strings.TrimRight(siteURL, "/")}
}

// ToDatabase expands placeholders into the site URL.
func (r *AbsoluteURLReplacer) ToDatabase(_ context.Context, info *schema.EntityInfo, fields map[string]string) error {
	if r.siteURL == "" {
		return nil
	}
	for k, v := range fields {
		if skipField(info, k) {
			continue
		}
		if strings.Contains(v, SiteURLPlaceholder) {
			fields[k] = strings.ReplaceAll(v, SiteURLPlaceholder, r.siteURL)
		}
	}
	return nil
}

// ToStorage collapses the site URL into placeholders.
func (r *AbsoluteURLReplacer) ToStorage(_ context.Context, info *schema.EntityInfo, fields map[string]string) error {
	if r.siteURL == "" {
		return nil
	}
	for k, v := range fields {
		if skipField(info, k) {
			continue
		}
		if strings.Contains(v, r.siteURL) {
			fields[k] = strings.ReplaceAll(v, r.siteURL, SiteURLPlaceholder)
		}
	}
	return nil
}

// skipField excludes identifiers and reference fields.
func skipField(info *schema.EntityInfo, field string) bool {
	if field == schema.VpIDField || field == info.IDColumn {
		return true
	}
	return strings.HasPrefix(field, schema.ReferencePrefix)
}
