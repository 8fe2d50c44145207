package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEpisodeID(t *testing.T) {
	cases := []struct {
		in   string
		want EpisodeID
		ok   bool
	}{
		{"tt1234567:1:2", EpisodeID{SeriesID: "tt1234567", Season: 1, Episode: 2}, true},
		{"dflix:%2Fs%2Fview%2F5967:3:10", EpisodeID{SeriesID: "dflix:%2Fs%2Fview%2F5967", Season: 3, Episode: 10}, true},
		{"tt1234567", EpisodeID{}, false},
		{"tt1234567:1", EpisodeID{}, false},
		{"tt1234567:a:2", EpisodeID{}, false},
		{"tt1234567:0:2", EpisodeID{}, false},
		{":1:2", EpisodeID{}, false},
	}
	for _, c := range cases {
		got, ok := ParseEpisodeID(c.in)
		require.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestEpisodeID_KeyRoundTrip(t *testing.T) {
	id, ok := ParseEpisodeID("tt0903747:5:16")
	require.True(t, ok)
	assert.Equal(t, "tt0903747:5:16", id.Key())
}

func TestLinkState_PendingNeverYieldsURL(t *testing.T) {
	_, ok := Pending().URL()
	assert.False(t, ok)

	_, ok = Resolved("").URL()
	assert.False(t, ok, "空链接必须按占位处理")

	u, ok := Resolved("https://example.test/a.mp4").URL()
	assert.True(t, ok)
	assert.Equal(t, "https://example.test/a.mp4", u)
}

func TestParseContentType(t *testing.T) {
	assert.Equal(t, TypeMovie, ParseContentType("Movie"))
	assert.Equal(t, TypeSeries, ParseContentType("anime"))
	assert.Equal(t, TypeSeries, ParseContentType("series"))
	assert.Equal(t, TypeAll, ParseContentType(""))
}
