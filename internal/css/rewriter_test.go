package css

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewrite(t *testing.T) {
	tests := []struct {
		name       string
		sourcePath string
		outputPath string
		input      string
		expected   string
	}{
		{
			name:       "output in parent of source folder",
			sourcePath: `C:\somepath\somesubpath\someothersubpath\myfile.css`,
			outputPath: `C:\somepath\somesubpath\myfile.css`,
			input:      `.header { background-image: url(images/header.png); }`,
			expected:   `.header { background-image: url(someothersubpath/images/header.png); }`,
		},
		{
			name:       "preserves casing of captured segments",
			sourcePath: `C:\somepath\somesubpath\someothersubpath\myfile.css`,
			outputPath: `C:\somepath\somesubpath\myfile.css`,
			input:      `.a { background: url(Images/A.png); } .b { background: url(iMages/b.PNG); }`,
			expected:   `.a { background: url(someothersubpath/Images/A.png); } .b { background: url(someothersubpath/iMages/b.PNG); }`,
		},
		{
			name:       "rewrites every occurrence of the same path",
			sourcePath: "site/css/theme/main.css",
			outputPath: "site/css/output.css",
			input:      `.a { background: url(img/x.png); } .b { background: url(img/x.png); }`,
			expected:   `.a { background: url(theme/img/x.png); } .b { background: url(theme/img/x.png); }`,
		},
		{
			name:       "output deeper than source",
			sourcePath: "/somepath/somesubpath/someothersubpath/myfile.css",
			outputPath: "/somepath/somesubpath/someothersubpath/evendeeper/output.css",
			input:      `.header { background-image: url(../img/header.png); }`,
			expected:   `.header { background-image: url(../../img/header.png); }`,
		},
		{
			name:       "output shallower than source",
			sourcePath: "/somepath/somesubpath/myfile.css",
			outputPath: "/somepath/output.css",
			input:      `.header { background-image: url(../img/header.png); }`,
			expected:   `.header { background-image: url(img/header.png); }`,
		},
		{
			name:       "reference inside a subfolder of the source folder",
			sourcePath: "/somepath/somesubpath/myfile.css",
			outputPath: "/somepath/someothersubpath/evendeeper/output.css",
			input:      `.header { background-image: url(img/); }`,
			expected:   `.header { background-image: url(../../somesubpath/img/); }`,
		},
		{
			name:       "same depth different folder",
			sourcePath: "/somepath/somesubpath/myfile.css",
			outputPath: "/somepath/someothersubpath/output.css",
			input:      `.header { background-image: url(../img/header.png); }`,
			expected:   `.header { background-image: url(../img/header.png); }`,
		},
		{
			name:       "single and double quotes are preserved",
			sourcePath: "/a/b/c/file.css",
			outputPath: "/a/b/out.css",
			input:      `.x { background: url('img/x.png'); } .y { background: url("img/y.png"); }`,
			expected:   `.x { background: url('c/img/x.png'); } .y { background: url("c/img/y.png"); }`,
		},
		{
			name:       "mixed case url token",
			sourcePath: "/a/b/c/file.css",
			outputPath: "/a/b/out.css",
			input:      `.x { background: URL(img/x.png); } .y { background: uRL("img/y.png"); }`,
			expected:   `.x { background: URL(c/img/x.png); } .y { background: uRL("c/img/y.png"); }`,
		},
		{
			name:       "absolute references untouched",
			sourcePath: "/a/b/c/file.css",
			outputPath: "/a/b/out.css",
			input:      `.x { background: url(/img/x.png); } .y { background: url(http://cdn.example.com/y.png); } .z { background: url(data:image/png;base64,AAAA); }`,
			expected:   `.x { background: url(/img/x.png); } .y { background: url(http://cdn.example.com/y.png); } .z { background: url(data:image/png;base64,AAAA); }`,
		},
		{
			name:       "query and fragment kept",
			sourcePath: "/a/b/c/file.css",
			outputPath: "/a/b/out.css",
			input:      `@font-face { src: url(fonts/x.eot?#iefix); }`,
			expected:   `@font-face { src: url(c/fonts/x.eot?#iefix); }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Rewrite(tt.outputPath, tt.sourcePath, tt.input))
		})
	}
}

func TestRewrite_SameLocationIsNoOp(t *testing.T) {
	css := `.a { background: url(./img/a.png); } .b { background: url('../x/../b.png'); }`
	assert.Equal(t, css, Rewrite("/site/css/main.css", "/site/css/main.css", css))
	assert.Equal(t, css, Rewrite("/site/css/output.css", "/site/css/main.css", css))
}

func TestIsAbsolute(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/img/a.png", true},
		{"http://example.com/a.png", true},
		{"https://example.com/a.png", true},
		{"data:image/gif;base64,R0lGOD", true},
		{"#filter", true},
		{"", true},
		{"img/a.png", false},
		{"../img/a.png", false},
		{"./a.png", false},
		{"a:b/c.png", true},
		{"1a:b.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAbsolute(tt.path))
		})
	}
}
