package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"
	"whosetune/internal/api"
	"whosetune/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveTracks(prefix string) []domain.TrackRef {
	refs := make([]domain.TrackRef, domain.TrackSubmissionCount)
	for i := range refs {
		refs[i] = domain.TrackRef(fmt.Sprintf("https://open.spotify.com/track/%s%d", prefix, i))
	}
	return refs
}

func TestFetchTop_ReturnsNormalizedRefs(t *testing.T) {
	client := &fakeStreamingClient{
		TopTracksFunc: func(ctx context.Context, token, timeRange string, limit int) (*api.TopTracksResponse, error) {
			assert.Equal(t, "short_term", timeRange)
			assert.Equal(t, domain.TrackSubmissionCount, limit)
			resp := &api.TopTracksResponse{}
			for i := 0; i < 5; i++ {
				track := api.Track{ID: fmt.Sprintf("top%d", i)}
				track.ExternalURLs.Spotify = fmt.Sprintf("https://open.spotify.com/track/top%d?si=x", i)
				resp.Items = append(resp.Items, track)
			}
			return resp, nil
		},
	}
	agg := NewTopTrackAggregator(client, newFakePending(), testLogger)

	refs, err := agg.FetchTop(context.Background(), testCredential("p"))
	require.NoError(t, err)
	require.Len(t, refs, 5)
	assert.Equal(t, domain.TrackRef("https://open.spotify.com/track/top0"), refs[0], "tracking suffix stripped")
}

func TestFetchTop_EmptyHistory(t *testing.T) {
	agg := NewTopTrackAggregator(&fakeStreamingClient{}, newFakePending(), testLogger)

	_, err := agg.FetchTop(context.Background(), testCredential("p"))
	assert.ErrorIs(t, err, domain.ErrNoTopTracks)
}

func TestFetchTop_APIError(t *testing.T) {
	client := &fakeStreamingClient{
		TopTracksFunc: func(ctx context.Context, token, timeRange string, limit int) (*api.TopTracksResponse, error) {
			return nil, errors.New("upstream 500")
		},
	}
	agg := NewTopTrackAggregator(client, newFakePending(), testLogger)

	_, err := agg.FetchTop(context.Background(), testCredential("p"))
	assert.ErrorIs(t, err, domain.ErrNoTopTracks, "API failure routes to the manual-entry fallback")
}

func TestSubmit_RequiresExactCount(t *testing.T) {
	agg := NewTopTrackAggregator(&fakeStreamingClient{}, newFakePending(), testLogger)

	err := agg.Submit("Alice", fiveTracks("a")[:3])
	assert.ErrorIs(t, err, domain.ErrInvalidTrackReference)

	err = agg.Submit("Alice", append(fiveTracks("a"), "https://open.spotify.com/track/extra"))
	assert.ErrorIs(t, err, domain.ErrInvalidTrackReference)
}

func TestSubmit_WritesBothCopies(t *testing.T) {
	pending := newFakePending()
	agg := NewTopTrackAggregator(&fakeStreamingClient{}, pending, testLogger)

	require.NoError(t, agg.Submit("Alice", fiveTracks("a")))

	durable, err := pending.All()
	require.NoError(t, err)
	require.Contains(t, durable, "Alice")
	assert.Equal(t, fiveTracks("a"), durable["Alice"].Tracks)

	names, err := agg.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names)
}

func TestInterleaveAndShuffle_MemoryWinsOverDurable(t *testing.T) {
	pending := newFakePending()
	stale := fiveTracks("stale")
	require.NoError(t, pending.Put("Alice", domain.PendingSubmission{Tracks: stale, AddedAt: time.Now().Add(-time.Hour)}))

	agg := NewTopTrackAggregator(&fakeStreamingClient{}, pending, testLogger)
	fresh := fiveTracks("fresh")
	require.NoError(t, agg.Submit("Alice", fresh))

	entries, err := agg.InterleaveAndShuffle()
	require.NoError(t, err)
	require.Len(t, entries, domain.TrackSubmissionCount)
	for _, entry := range entries {
		assert.Equal(t, "Alice", entry.Contributor)
		assert.NotContains(t, stale, entry.Track, "resubmission replaces the durable copy")
	}
}

func TestInterleaveAndShuffle_MultisetPreserved(t *testing.T) {
	pending := newFakePending()
	agg := NewTopTrackAggregator(&fakeStreamingClient{}, pending, testLogger)

	want := make(map[Entry]int)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		tracks := fiveTracks(name)
		require.NoError(t, agg.Submit(name, tracks))
		for _, track := range tracks {
			want[Entry{Track: track, Contributor: name}]++
		}
	}

	entries, err := agg.InterleaveAndShuffle()
	require.NoError(t, err)
	assert.Len(t, entries, 3*domain.TrackSubmissionCount)

	got := make(map[Entry]int)
	for _, entry := range entries {
		got[entry]++
	}
	assert.Equal(t, want, got, "shuffle permutes but never drops or duplicates")
}

func TestInterleaveAndShuffle_ClearsBothCopies(t *testing.T) {
	pending := newFakePending()
	agg := NewTopTrackAggregator(&fakeStreamingClient{}, pending, testLogger)
	require.NoError(t, agg.Submit("Alice", fiveTracks("a")))

	_, err := agg.InterleaveAndShuffle()
	require.NoError(t, err)

	names, err := agg.Pending()
	require.NoError(t, err)
	assert.Empty(t, names)

	durable, err := pending.All()
	require.NoError(t, err)
	assert.Empty(t, durable)

	entries, err := agg.InterleaveAndShuffle()
	require.NoError(t, err)
	assert.Empty(t, entries, "second drain has nothing left")
}

func TestPending_MergedAndSorted(t *testing.T) {
	pending := newFakePending()
	require.NoError(t, pending.Put("Zoe", domain.PendingSubmission{Tracks: fiveTracks("z"), AddedAt: time.Now()}))

	agg := NewTopTrackAggregator(&fakeStreamingClient{}, pending, testLogger)
	require.NoError(t, agg.Submit("Alice", fiveTracks("a")))

	names, err := agg.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Zoe"}, names)
	assert.True(t, sort.StringsAreSorted(names))
}
