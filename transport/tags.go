package transport

import (
	"context"
)

type requestTagsContextKey struct{}

// WithTags attaches tags to the context; the transport logs them with every request.
func WithTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(TagsFromContext(ctx), tags...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, requestTagsContextKey{}, combined)
}

// TagsFromContext returns a copy of the tags attached to ctx.
func TagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(requestTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
