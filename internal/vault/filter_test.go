package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{"no patterns admits all", nil, nil, "notes/a.md", true},
		{"exclude dir subtree", nil, []string{"archive/**"}, "archive/old.md", false},
		{"exclude dir subtree nested", nil, []string{"archive/**"}, "archive/2020/old.md", false},
		{"exclude leaves siblings", nil, []string{"archive/**"}, "notes/a.md", true},
		{"exclude segment anywhere", nil, []string{"**/templates"}, "a/templates/t.md", false},
		{"exclude extension anywhere", nil, []string{"**/*.excalidraw.md"}, "draw/x.excalidraw.md", false},
		{"include is a whitelist", []string{"notes/**"}, nil, "journal/j.md", false},
		{"include admits subtree", []string{"notes/**"}, nil, "notes/deep/a.md", true},
		{"exclude wins over include", []string{"notes/**"}, []string{"notes/private/**"}, "notes/private/s.md", false},
		{"basename glob", nil, []string{"*.tmp.md"}, "notes/scratch.tmp.md", false},
		{"dir glob", nil, []string{"daily/2024-*.md"}, "daily/2024-01-01.md", false},
		{"dir glob other dir", nil, []string{"daily/2024-*.md"}, "weekly/2024-01-01.md", true},
		{"exact path", nil, []string{"inbox/drop.md"}, "inbox/drop.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.include, tt.exclude)
			assert.Equal(t, tt.want, f.Match(tt.path))
		})
	}
}

func TestFilter_Apply_PreservesOrder(t *testing.T) {
	f := NewFilter(nil, []string{"b.md"})
	files := []FileInfo{{Path: "a.md"}, {Path: "b.md"}, {Path: "c.md"}}

	got := f.Apply(files)

	assert.Equal(t, []FileInfo{{Path: "a.md"}, {Path: "c.md"}}, got)
}
