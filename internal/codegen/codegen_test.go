package codegen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

func TestHTMLParser_ExtractsFirstBlock(t *testing.T) {
	text := "Here is your page:\n```html\n<h1>Hi</h1>\n```\nand more\n```html\n<p>second</p>\n```"
	files := HTMLParser{}.Parse(text)
	require.Len(t, files, 1)
	assert.Equal(t, "index.html", files[0].Name)
	assert.Equal(t, "<h1>Hi</h1>", files[0].Content)
}

func TestHTMLParser_FallsBackToWholeText(t *testing.T) {
	files := HTMLParser{}.Parse("<html>raw</html>")
	require.Len(t, files, 1)
	assert.Equal(t, "<html>raw</html>", files[0].Content)
}

func TestMultiFileParser(t *testing.T) {
	text := "```html\n<div></div>\n```\n```css\nbody{}\n```\n```javascript\nconsole.log(1)\n```"
	files := MultiFileParser{}.Parse(text)
	require.Len(t, files, 3)
	assert.Equal(t, File{Name: "index.html", Content: "<div></div>"}, files[0])
	assert.Equal(t, File{Name: "style.css", Content: "body{}"}, files[1])
	assert.Equal(t, File{Name: "script.js", Content: "console.log(1)"}, files[2])
}

func TestRegistry_ParseAndSave_SkipsBlankFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := NewRegistry()

	_, err := r.ParseAndSave(core.GenerationMultiFile, "```html\n<p>x</p>\n```", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "style.css"))
	assert.NoFileExists(t, filepath.Join(dir, "script.js"))
}

func TestRegistry_StructuredHasNoStrategy(t *testing.T) {
	_, err := NewRegistry().ParseAndSave(core.GenerationStructuredProject, "x", t.TempDir())
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatConfiguration))
}

func TestFileSaver_RejectsEscapingPaths(t *testing.T) {
	err := FileSaver{}.Save(FileSet{{Name: "../evil.html", Content: "x"}}, t.TempDir())
	require.Error(t, err)
}

func TestOutputDir(t *testing.T) {
	got, err := OutputDir("/tmp/code", core.GenerationPlainPage, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/code", "plain_page_abc"), got)
}

func TestOutputDir_StaysUnderRoot(t *testing.T) {
	for _, key := range []string{"../../../escaped", "a/../../x", "nested/dir", `..\x`} {
		_, err := OutputDir("/tmp/code", core.GenerationPlainPage, key)
		require.Error(t, err, key)
		assert.True(t, core.IsCategory(err, core.ErrCatValidation), key)
	}
}
