package dblpstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dblp.db")
	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

const sampleDBLP = `<?xml version="1.0" encoding="ISO-8859-1"?>
<dblp>
	<article mdate="2020-01-01" key="journals/test/Vaswani17">
		<author>Ashish Vaswani</author>
		<author>Noam Shazeer</author>
		<title>Attention Is All You Need.</title>
		<year>2017</year>
		<ee>https://dblp.org/rec/journals/test/Vaswani17</ee>
	</article>
	<inproceedings mdate="2019-05-02" key="conf/naacl/DevlinCLT19">
		<author>Jacob Devlin</author>
		<author>Ming-Wei Chang</author>
		<title>BERT: Pre-training of Deep Bidirectional Transformers for Language Understanding.</title>
		<year>2019</year>
		<ee>https://doi.org/10.18653/v1/n19-1423</ee>
	</inproceedings>
	<www mdate="2010-01-01" key="homepages/x/Y">
		<author>Someone</author>
		<title>Home Page</title>
	</www>
	<article mdate="2021-01-01" key="journals/test/Untitled21">
		<author>No Title</author>
		<title>   </title>
		<year>2021</year>
	</article>
</dblp>`

func buildSample(t *testing.T, st *Store) {
	t.Helper()
	err := st.Build(context.Background(), strings.NewReader(sampleDBLP), nil)
	require.NoError(t, err)
}

func TestBuildAndInfo(t *testing.T) {
	st := newTestStore(t)

	var lastDone, lastTotal uint64
	err := st.Build(context.Background(), strings.NewReader(sampleDBLP), func(done, total uint64) {
		lastDone, lastTotal = done, total
	})
	require.NoError(t, err)

	// Homepages and blank titles are dropped.
	assert.Equal(t, uint64(2), lastDone)
	assert.Equal(t, lastDone, lastTotal)

	info, err := st.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Records)
	assert.False(t, info.BuiltAt.IsZero())
	assert.Less(t, info.Staleness(), time.Minute)
}

func TestQueryExactNormalizedTitle(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)

	m, err := st.Query(context.Background(), "attention is all you need")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1.0, m.Score)
	assert.Equal(t, "Attention Is All You Need", m.Record.Title)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, m.Record.Authors)
	assert.Equal(t, "https://dblp.org/rec/journals/test/Vaswani17", m.Record.URL)
	assert.Equal(t, 2017, m.Record.Year)
}

func TestQueryTruncatedSubtitle(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)

	// Cited without the subtitle after the colon.
	m, err := st.Query(context.Background(),
		"BERT: Pre-training of Deep Bidirectional Transformers")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Less(t, m.Score, 1.0)
	assert.Contains(t, m.Record.Title, "BERT")
}

func TestQueryMiss(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)

	m, err := st.Query(context.Background(), "A Tour of Unwritten Papers")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestQueryEmptyTitle(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)

	m, err := st.Query(context.Background(), "  !!  ")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestInfoBeforeBuild(t *testing.T) {
	st := newTestStore(t)

	info, err := st.Info(context.Background())
	require.NoError(t, err)
	assert.True(t, info.BuiltAt.IsZero())
	assert.Zero(t, info.Records)
	assert.Zero(t, info.Staleness())
}

func TestRebuildReplacesContents(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)

	second := `<dblp>
		<article key="journals/test/One22">
			<author>Only Author</author>
			<title>The Only Remaining Paper.</title>
			<year>2022</year>
		</article>
	</dblp>`
	require.NoError(t, st.Build(context.Background(), strings.NewReader(second), nil))

	info, err := st.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Records)

	m, err := st.Query(context.Background(), "attention is all you need")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = st.Query(context.Background(), "The Only Remaining Paper")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "The Only Remaining Paper", m.Record.Title)
}

func TestFlatTitleKeepsNestedMarkupText(t *testing.T) {
	st := newTestStore(t)

	doc := `<dblp>
		<article key="journals/test/Math20">
			<author>M Author</author>
			<title>Computing <i>exact</i> solutions over GF(2).</title>
			<year>2020</year>
		</article>
	</dblp>`
	require.NoError(t, st.Build(context.Background(), strings.NewReader(doc), nil))

	m, err := st.Query(context.Background(), "Computing exact solutions over GF(2)")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Computing exact solutions over GF(2)", m.Record.Title)
}

func TestBuildResolvesEntities(t *testing.T) {
	st := newTestStore(t)

	doc := `<dblp>
		<article key="journals/test/Mueller18">
			<author>J&uuml;rgen M&uuml;ller</author>
			<title>Verteilte Systeme in der Praxis.</title>
			<year>2018</year>
		</article>
	</dblp>`
	require.NoError(t, st.Build(context.Background(), strings.NewReader(doc), nil))

	m, err := st.Query(context.Background(), "Verteilte Systeme in der Praxis")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"Jürgen Müller"}, m.Record.Authors)
}

func TestETagRoundTrip(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)

	tag, err := st.ETag(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tag)

	require.NoError(t, st.SetETag(context.Background(), `"abc123"`))
	tag, err = st.ETag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `"abc123"`, tag)

	// Rebuilding wipes the tag along with the rest of the metadata.
	buildSample(t, st)
	tag, err = st.ETag(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tag)
}

func TestInterruptedBuildClearsMeta(t *testing.T) {
	st := newTestStore(t)
	buildSample(t, st)
	require.NoError(t, st.SetETag(context.Background(), `"abc123"`))

	src := io.MultiReader(strings.NewReader("<dblp>"), iotest.ErrReader(errors.New("connection reset")))
	require.Error(t, st.Build(context.Background(), src, nil))

	info, err := st.Info(context.Background())
	require.NoError(t, err)
	assert.True(t, info.BuiltAt.IsZero(), "a failed build must not advertise a build time")

	tag, err := st.ETag(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tag)
}
