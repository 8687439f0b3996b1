// Package tags implements template/tag matching helpers used by the
// coordinator's placement logic when a reservation names tags instead of
// (or in addition to) a specific template.
package tags

import (
	"strings"

	"github.com/wsfleet/coordinator/internal/models"
)

// ByString returns, for each name in names, the tag from all whose Name
// matches exactly, or a zero models.Tag (ID == "") when no match exists.
// The reference coordinator preserves one output entry per input name,
// including misses, so callers can report which names did not resolve.
func ByString(all []models.Tag, names []string) []models.Tag {
	byName := make(map[string]models.Tag, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}
	out := make([]models.Tag, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}

// ContainingStringAnycase returns every tag whose name contains substr,
// case-insensitively.
func ContainingStringAnycase(all []models.Tag, substr string) []models.Tag {
	needle := strings.ToLower(substr)
	var out []models.Tag
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Name), needle) {
			out = append(out, t)
		}
	}
	return out
}

// CompatibleWithTags returns every tag that co-occurs, on at least one
// template, with the full set of input tags — i.e. the tags of templates
// that are already compatible with everything in input. Tags already in
// input are excluded from the result. allTags resolves tag IDs to their
// full record.
func CompatibleWithTags(allTags []models.Tag, templates []models.Template, input []models.Tag) []models.Tag {
	byID := make(map[string]models.Tag, len(allTags))
	for _, t := range allTags {
		byID[t.ID] = t
	}
	inputIDs := make(map[string]struct{}, len(input))
	for _, t := range input {
		inputIDs[t.ID] = struct{}{}
	}

	seen := make(map[string]struct{})
	var compatible []models.Tag
	for _, tpl := range templates {
		templateTagIDs := make(map[string]struct{}, len(tpl.TagIDs))
		for _, id := range tpl.TagIDs {
			templateTagIDs[id] = struct{}{}
		}
		if !containsAll(templateTagIDs, inputIDs) {
			continue
		}
		for _, id := range tpl.TagIDs {
			if _, excluded := inputIDs[id]; excluded {
				continue
			}
			if _, already := seen[id]; already {
				continue
			}
			seen[id] = struct{}{}
			compatible = append(compatible, byID[id])
		}
	}
	return compatible
}

func containsAll(set, subset map[string]struct{}) bool {
	for id := range subset {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Names extracts the Name field of each tag, in order.
func Names(ts []models.Tag) []string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.Name)
	}
	return names
}
