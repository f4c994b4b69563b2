package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_ExtractsCanonicalID(t *testing.T) {
	doc := newFakeSheet().
		set(2, 1, "https://www.instagram.com/reel/ABC123/")

	links, err := Scan(doc)
	require.NoError(t, err)
	require.Len(t, links, 1)

	assert.Equal(t, 2, links[0].Row)
	assert.Equal(t, 1, links[0].Col)
	assert.Equal(t, "ABC123", links[0].CanonicalID)
}

func TestScan_PathSegmentVariants(t *testing.T) {
	doc := newFakeSheet().
		set(1, 1, "https://instagram.com/p/Post_1/").
		set(2, 1, "https://www.instagram.com/tv/TV-2/").
		set(3, 1, "HTTPS://WWW.INSTAGRAM.COM/REELS/Xy9/")

	links, err := Scan(doc)
	require.NoError(t, err)
	require.Len(t, links, 3)

	assert.Equal(t, "Post_1", links[0].CanonicalID)
	assert.Equal(t, "TV-2", links[1].CanonicalID)
	assert.Equal(t, "Xy9", links[2].CanonicalID)
}

func TestScan_StripsQuotesAndWhitespace(t *testing.T) {
	doc := newFakeSheet().
		set(1, 1, `  "https://www.instagram.com/reel/QUOTED/"  `)

	links, err := Scan(doc)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "QUOTED", links[0].CanonicalID)
	assert.Equal(t, "https://www.instagram.com/reel/QUOTED/", links[0].RawText)
}

func TestScan_DropsDomainOnlyMatches(t *testing.T) {
	// A bare profile link matches the domain but yields no id, so it
	// cannot be joined to any provider result.
	doc := newFakeSheet().
		set(1, 1, "https://www.instagram.com/some_profile").
		set(2, 1, "https://www.instagram.com/reel/KEEP1/")

	links, err := Scan(doc)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "KEEP1", links[0].CanonicalID)
}

func TestScan_RowMajorOrder(t *testing.T) {
	doc := newFakeSheet().
		set(1, 3, "https://www.instagram.com/reel/C/").
		set(1, 1, "https://www.instagram.com/reel/A/").
		set(2, 1, "https://www.instagram.com/reel/B/")

	links, err := Scan(doc)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "A", links[0].CanonicalID)
	assert.Equal(t, "C", links[1].CanonicalID)
	assert.Equal(t, "B", links[2].CanonicalID)
}

func TestScan_NoLinks(t *testing.T) {
	doc := newFakeSheet().
		set(1, 1, "Campaign").
		set(2, 1, "https://example.com/reel/NOPE/")

	_, err := Scan(doc)
	assert.ErrorIs(t, err, ErrNoLinksFound)
}

func TestCanonicalID_NoMatch(t *testing.T) {
	_, ok := CanonicalID("https://www.instagram.com/")
	assert.False(t, ok)
}

func TestMatchesDomain(t *testing.T) {
	assert.True(t, MatchesDomain("instagram.com/whoever"))
	assert.True(t, MatchesDomain("https://www.instagram.com/"))
	assert.False(t, MatchesDomain("https://example.com/reel/X/"))
}
