package replacer

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"content-history/core/schema"
)

// IDResolver translates between vpIds and primary keys.
type IDResolver interface {
	ResolveToPrimaryKey(ctx context.Context, entityTable, vpID string) (int64, bool, error)
	ResolveToVpID(ctx context.Context, entityTable string, pk int64) (string, bool, error)
}

var (
	shortcodePattern = regexp.MustCompile(`\[([a-zA-Z0-9_-]+)((?:\s+[^\]]*)?)\]`)
	attributePattern = regexp.MustCompile(`([a-zA-Z0-9_-]+)\s*=\s*"([^"]*)"`)
)

// ShortcodeReplacer rewrites entity ids inside shortcode attributes, e.g.
// [gallery ids="12,13"] in the database is [gallery ids="<vpId>,<vpId>"] in
// storage. Ids without a mapping are left as they are.
type ShortcodeReplacer struct {
	schema *schema.Info
	ids    IDResolver
	byName map[string]schema.Shortcode
}

// NewShortcodeReplacer creates a replacer for the schema's shortcodes.
func NewShortcodeReplacer(info *schema.Info, ids IDResolver) *ShortcodeReplacer {
	byName := make(map[string]schema.Shortcode, len(info.Shortcodes))
	for _, sc := range info.Shortcodes {
		byName[sc.Name] = sc
	}
	return &ShortcodeReplacer{schema: info, ids: ids, byName: byName}
}

// ToDatabase replaces vpIds with primary keys.
func (r *ShortcodeReplacer) ToDatabase(ctx context.Context, info *schema.EntityInfo, fields map[string]string) error {
	return r.rewrite(ctx, info, fields, func(table, value string) (string, bool, error) {
		pk, ok, err := r.ids.ResolveToPrimaryKey(ctx, table, value)
		if err != nil || !ok {
			return "", false, err
		}
		return strconv.FormatInt(pk, 10), true, nil
	})
}

// ToStorage replaces primary keys with vpIds.
func (r *ShortcodeReplacer) ToStorage(ctx context.Context, info *schema.EntityInfo, fields map[string]string) error {
	return r.rewrite(ctx, info, fields, func(table, value string) (string, bool, error) {
		pk, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", false, nil
		}
		vpID, ok, err := r.ids.ResolveToVpID(ctx, table, pk)
		if err != nil || !ok {
			return "", false, err
		}
		return vpID, true, nil
	})
}

type idMapper func(table, value string) (string, bool, error)

func (r *ShortcodeReplacer) rewrite(ctx context.Context, info *schema.EntityInfo, fields map[string]string, mapID idMapper) error {
	if len(r.byName) == 0 {
		return nil
	}
	for _, field := range info.ShortcodeFields {
		text, ok := fields[field]
		if !ok || !strings.Contains(text, "[") {
			continue
		}
		out, err := r.rewriteText(text, mapID)
		if err != nil {
			return err
		}
		fields[field] = out
	}
	return nil
}

func (r *ShortcodeReplacer) rewriteText(text string, mapID idMapper) (string, error) {
	var firstErr error
	out := shortcodePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := shortcodePattern.FindStringSubmatch(match)
		sc, ok := r.byName[parts[1]]
		if !ok || firstErr != nil {
			return match
		}
		attrs := attributePattern.ReplaceAllStringFunc(parts[2], func(attr string) string {
			kv := attributePattern.FindStringSubmatch(attr)
			target, ok := sc.Attributes[kv[1]]
			if !ok {
				return attr
			}
			table := r.schema.MustEntity(target).Table
			values := strings.Split(kv[2], ",")
			for i, v := range values {
				v = strings.TrimSpace(v)
				mapped, ok, err := mapID(table, v)
				if err != nil {
					firstErr = err
					return attr
				}
				if ok {
					values[i] = mapped
				} else {
					values[i] = v
				}
			}
			return kv[1] + `="` + strings.Join(values, ",") + `"`
		})
		return "[" + parts[1] + attrs + "]"
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
