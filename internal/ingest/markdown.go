package ingest

import (
	"strings"

	"coursesync/internal/model"
)

// BuildMarkdown renders a section's modules as the markdown stored in the
// section row. Each module becomes a level-3 heading followed by its type, an
// optional link to the module and, if it has resources, a list of links to
// their storage keys. An empty module list renders as "".
func BuildMarkdown(courseID, sectionName string, modules []model.Module) string {
	if len(modules) == 0 {
		return ""
	}

	var lines []string
	for _, m := range modules {
		lines = append(lines, "### "+m.Name)
		lines = append(lines, "**Type:** "+m.Type+"\n")

		if m.URL != "" {
			lines = append(lines, "[View Module]("+m.URL+")\n")
		}

		if len(m.Resources) > 0 {
			lines = append(lines, "**Files:**")
			for _, r := range m.Resources {
				key := StorageKey(courseID, sectionName, r.Filename)
				lines = append(lines, "- ["+r.Filename+"]("+StorageScheme+"://"+key+")")
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}
