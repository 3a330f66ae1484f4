package transform

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/processor/format"
	"github.com/SimioLLC/WebAPISync/table"
)

const ordersXML = `<orders>
  <order id="1"><qty>2</qty><sku>A-1</sku></order>
  <order id="2"><qty>5</qty><sku>B-2</sku></order>
</orders>`

const xsltNS = "http://www.w3.org/1999/XSL/Transform"

const identityXSLT = `<xsl:stylesheet version="1.0" xmlns:xsl="` + xsltNS + `">
    <xsl:template match="node()|@*">
      <xsl:copy>
        <xsl:apply-templates select="node()|@*"/>
      </xsl:copy>
    </xsl:template>
</xsl:stylesheet>`

func parse(t *testing.T, text string) *xmlquery.Node {
	t.Helper()
	doc, err := xmlquery.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return doc
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantErr  bool
		identity bool
	}{
		{name: "empty is identity", text: "", identity: true},
		{name: "whitespace is identity", text: "  \n", identity: true},
		{name: "table only is identity", text: "table: order\n", identity: true},
		{name: "rows only", text: "rows: //order\n"},
		{name: "full", text: "rows: //order\ncolumns:\n  - name: id\n    select: '@id'\n"},
		{name: "xslt rejected", text: `<xsl:stylesheet version="1.0"/>`, wantErr: true},
		{name: "identity xslt", text: identityXSLT, identity: true},
		{name: "identity xslt reordered", text: strings.ReplaceAll(identityXSLT, "node()|@*", "@* | node()"), identity: true},
		{name: "copying xslt without namespace", text: strings.ReplaceAll(identityXSLT, xsltNS, "urn:other"), wantErr: true},
		{name: "non-identity xslt", text: strings.Replace(identityXSLT, `select="node()|@*"`, `select="node()"`, 1), wantErr: true},
		{name: "bad yaml", text: "rows: [unclosed", wantErr: true},
		{name: "unknown field", text: "rowz: //order\n", wantErr: true},
		{name: "bad rows xpath", text: "rows: '//['\n", wantErr: true},
		{name: "bad column xpath", text: "rows: //order\ncolumns:\n  - name: x\n    select: 'a['\n", wantErr: true},
		{name: "columns without rows", text: "columns:\n  - name: id\n", wantErr: true},
		{name: "duplicate column", text: "rows: //o\ncolumns:\n  - name: a\n  - name: a\n", wantErr: true},
		{name: "unnamed column", text: "rows: //o\ncolumns:\n  - select: a\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, err := Compile(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrTransformFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.identity, sheet.IsIdentity())
		})
	}
}

func TestEngine_ColumnsMapping(t *testing.T) {
	sheet, err := Compile(`
table: order
rows: //order
columns:
  - name: id
    select: "@id"
  - name: qty
  - name: double
    select: qty * 2
  - name: missing
    select: nothing
`)
	require.NoError(t, err)

	frag, err := NewEngine(sheet).Transform(parse(t, ordersXML))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "qty", "double", "missing"}, frag.Columns)
	assert.Equal(t, [][]string{
		{"1", "2", "4", ""},
		{"2", "5", "10", ""},
	}, frag.Rows)
}

func TestEngine_RowsOnlyCopiesLeaves(t *testing.T) {
	sheet, err := Compile("rows: //order\n")
	require.NoError(t, err)

	frag, err := NewEngine(sheet).Transform(parse(t, ordersXML))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "qty", "sku"}, frag.Columns)
	assert.Equal(t, [][]string{{"1", "2", "A-1"}, {"2", "5", "B-2"}}, frag.Rows)
}

func TestEngine_NoMatchingRows(t *testing.T) {
	sheet, err := Compile("rows: //nothing\n")
	require.NoError(t, err)

	frag, err := NewEngine(sheet).Transform(parse(t, ordersXML))
	require.NoError(t, err)
	assert.True(t, frag.Empty())
}

func TestStylesheet_ApplyRejectsNonElements(t *testing.T) {
	for _, rows := range []string{"//order/@id", "count(//order)"} {
		t.Run(rows, func(t *testing.T) {
			sheet, err := Compile("rows: '" + rows + "'\n")
			require.NoError(t, err)

			_, err = sheet.Apply(parse(t, ordersXML))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrTransformFailed)
		})
	}
}

func TestStylesheet_ApplyIdentityReturnsInput(t *testing.T) {
	doc := parse(t, ordersXML)
	out, err := Identity().Apply(doc)
	require.NoError(t, err)
	assert.Same(t, doc, out)
}

func TestLoad_Inference(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		columns []string
		rows    [][]string
	}{
		{
			name:    "repeated scalars",
			xml:     `<data><items>1</items><items>2</items><items>3</items></data>`,
			columns: []string{"items"},
			rows:    [][]string{{"1"}, {"2"}, {"3"}},
		},
		{
			name:    "repeated records with missing cell",
			xml:     `<data><order><id>1</id><qty>2</qty></order><order><id>2</id></order></data>`,
			columns: []string{"id", "qty"},
			rows:    [][]string{{"1", "2"}, {"2", ""}},
		},
		{
			name:    "flat record",
			xml:     `<data><a>1</a><b>two</b></data>`,
			columns: []string{"a", "b"},
			rows:    [][]string{{"1", "two"}},
		},
		{
			name:    "descends through wrapper",
			xml:     `<data><wrapper><order><id>1</id></order><order><id>2</id></order></wrapper></data>`,
			columns: []string{"id"},
			rows:    [][]string{{"1"}, {"2"}},
		},
		{
			name:    "attribute rows",
			xml:     `<r><item id="a" v="1"/><item id="b" v="2"/></r>`,
			columns: []string{"id", "v"},
			rows:    [][]string{{"a", "1"}, {"b", "2"}},
		},
		{
			name:    "attributes before children",
			xml:     `<r><item id="a"><v>1</v></item><item id="b"><w>3</w></item></r>`,
			columns: []string{"id", "v", "w"},
			rows:    [][]string{{"a", "1", ""}, {"b", "", "3"}},
		},
		{
			name:    "scalar root",
			xml:     `<price>5</price>`,
			columns: []string{"price"},
			rows:    [][]string{{"5"}},
		},
		{
			name:    "encoded names decoded",
			xml:     `<data><_x0031_st>1</_x0031_st></data>`,
			columns: []string{"1st"},
			rows:    [][]string{{"1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := Load(parse(t, tt.xml))
			require.NoError(t, err)
			assert.Equal(t, tt.columns, frag.Columns)
			assert.Equal(t, tt.rows, frag.Rows)
		})
	}
}

func TestLoad_EmptyAndMissingRoot(t *testing.T) {
	frag, err := Load(parse(t, `<empty/>`))
	require.NoError(t, err)
	assert.True(t, frag.Empty())

	_, err = Load(&xmlquery.Node{Type: xmlquery.DocumentNode})
	assert.ErrorIs(t, err, errors.ErrRelationalLoad)

	_, err = Load(nil)
	assert.ErrorIs(t, err, errors.ErrRelationalLoad)
}

func TestLoadProjection_RowsWithoutColumns(t *testing.T) {
	doc := parse(t, `<table><row/><row/></table>`)
	_, err := LoadProjection(doc)
	assert.ErrorIs(t, err, errors.ErrRelationalLoad)
}

func TestEngine_NormalizedJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    table.Fragment
	}{
		{
			name:    "array of objects",
			payload: `{"orders":[{"id":1,"qty":2},{"id":2,"qty":3}]}`,
			want: table.Fragment{
				Columns: []string{"id", "qty"},
				Rows:    [][]string{{"1", "2"}, {"2", "3"}},
			},
		},
		{
			name:    "bare array",
			payload: `[1,2,3]`,
			want: table.Fragment{
				Columns: []string{"items"},
				Rows:    [][]string{{"1"}, {"2"}, {"3"}},
			},
		},
		{
			name:    "flat object",
			payload: `{"a":42.5,"b":"True"}`,
			want: table.Fragment{
				Columns: []string{"a", "b"},
				Rows:    [][]string{{"42.5", "True"}},
			},
		},
	}

	engine := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, _, err := format.Normalize(tt.payload)
			require.NoError(t, err)

			frag, err := engine.Transform(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, frag)
		})
	}

	frag, err := engine.Transform(nil)
	require.NoError(t, err)
	assert.True(t, frag.Empty())
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestFileSource_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.yaml")
	writeFile(t, path, "rows: //a\n")

	src, err := NewFileSource(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "rows: //a\n", src.Text())

	writeFile(t, path, "rows: //b\n")
	require.NoError(t, src.Reload())
	assert.Equal(t, "rows: //b\n", src.Text())

	writeFile(t, path, "rows: '//['\n")
	assert.Error(t, src.Reload())
	assert.Equal(t, "rows: //b\n", src.Text(), "last good stylesheet stays")
	assert.Equal(t, int64(2), src.Reloads())
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestFileSource_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.yaml")
	writeFile(t, path, "")

	src, err := NewFileSource(path, nil)
	require.NoError(t, err)
	src.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx) }()

	require.Eventually(t, func() bool {
		writeFile(t, path, "rows: //order\n")
		return src.Text() == "rows: //order\n"
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestStatic(t *testing.T) {
	assert.Equal(t, "rows: //x", Static("rows: //x").Text())
}
