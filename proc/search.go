package proc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leeineian/jukebox/sys"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	SourceYouTube      = "youtube"
	SourceYouTubeMusic = "youtube_music"

	searchResultLimit = 10
	relatedMixSize    = 25
)

var errNoMetadata = errors.New("failed to resolve metadata")

// YouTubeSearch resolves URIs through yt-dlp and free text through YouTube Music and YouTube.
type YouTubeSearch struct {
	limiter  *rate.Limiter
	inflight singleflight.Group
}

func NewYouTubeSearch(perSecond float64) *YouTubeSearch {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &YouTubeSearch{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)*2),
	}
}

func (y *YouTubeSearch) SearchByURIOrText(ctx context.Context, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{Status: SearchEmpty}, nil
	}
	// Spotify links are DRM protected; the caller falls back to a text search.
	if strings.Contains(query, "open.spotify.com/") {
		return SearchResult{Status: SearchEmpty}, nil
	}

	// Autocomplete and autoplay often ask for the same query at once.
	v, err, _ := y.inflight.Do(query, func() (any, error) {
		return y.lookup(ctx, query)
	})
	res, _ := v.(SearchResult)
	res.Tracks = append([]sys.Track(nil), res.Tracks...)
	if err != nil {
		res.Status = SearchError
	}
	return res, err
}

func (y *YouTubeSearch) lookup(ctx context.Context, query string) (SearchResult, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return SearchResult{Status: SearchError}, err
	}

	if !isURL(query) {
		tracks, err := y.searchText(ctx, query, searchResultLimit)
		if err != nil {
			return SearchResult{Status: SearchError}, err
		}
		if len(tracks) == 0 {
			return SearchResult{Status: SearchEmpty}, nil
		}
		return SearchResult{Status: SearchSearch, Tracks: tracks}, nil
	}

	if isPlaylistURL(query) {
		entries, err := ytdlpExtractPlaylist(ctx, query, 50)
		if err != nil {
			return SearchResult{Status: SearchError}, err
		}
		tracks := entriesToTracks(entries, "")
		if len(tracks) == 0 {
			return SearchResult{Status: SearchEmpty}, nil
		}
		return SearchResult{Status: SearchPlaylist, Tracks: tracks}, nil
	}

	t, err := ytdlpResolveTrack(ctx, query)
	if err != nil {
		if errors.Is(err, errNoMetadata) {
			return SearchResult{Status: SearchEmpty}, nil
		}
		return SearchResult{Status: SearchError}, err
	}
	return SearchResult{Status: SearchTrack, Tracks: []sys.Track{t}}, nil
}

// RelatedTracks reads the YouTube Music radio mix of the seed, falling back to the YouTube mix.
func (y *YouTubeSearch) RelatedTracks(ctx context.Context, seed sys.Track, limit int) ([]sys.Track, error) {
	id := extractVideoID(seed.Key())
	if id == "" {
		if err := y.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		found, err := y.searchText(ctx, seed.Query(), 1)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no video for %q", seed.Query())
		}
		id = extractVideoID(found[0].URI)
	}
	if id == "" {
		return nil, errors.New("seed has no video id")
	}

	mixes := []string{
		"https://music.youtube.com/watch?v=" + id + "&list=RDAMVM" + id,
		"https://www.youtube.com/watch?v=" + id + "&list=RD" + id,
	}
	var lastErr error
	for _, mix := range mixes {
		if err := y.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		entries, err := ytdlpExtractPlaylist(ctx, mix, relatedMixSize)
		if err != nil {
			sys.LogSearch(sys.MsgSearchRelatedFail, id, err)
			lastErr = err
			continue
		}
		tracks := entriesToTracks(entries, id)
		if len(tracks) > 0 {
			if limit > 0 && len(tracks) > limit {
				tracks = tracks[:limit]
			}
			return tracks, nil
		}
	}
	return nil, lastErr
}

// searchText fans out to YouTube Music and YouTube. Music results come first.
func (y *YouTubeSearch) searchText(ctx context.Context, query string, limit int) ([]sys.Track, error) {
	var ytm, yt []sys.Track
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			return nil
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" || len(v.Artists) == 0 {
				continue
			}
			ytm = append(ytm, sys.Track{
				Title:      v.Title,
				Author:     v.Artists[0].Name,
				URI:        "https://music.youtube.com/watch?v=" + v.VideoID,
				SourceName: SourceYouTubeMusic,
				Thumbnail:  thumbnailFor(v.VideoID),
			})
		}
		return nil
	})
	g.Go(func() error {
		r, err := ytsearch.NewClient(nil).Search(gctx, query)
		if err != nil {
			return nil
		}
		for _, v := range r.Results {
			if v.VideoID == "" {
				continue
			}
			yt = append(yt, sys.Track{
				Title:      v.Title,
				Author:     v.Channel,
				URI:        "https://www.youtube.com/watch?v=" + v.VideoID,
				DurationMs: parseDurationColon(v.Duration).Milliseconds(),
				SourceName: SourceYouTube,
				Thumbnail:  thumbnailFor(v.VideoID),
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []sys.Track
	for _, t := range append(ytm, yt...) {
		id := extractVideoID(t.URI)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}

func entriesToTracks(entries []ytdlpPlaylistEntry, skipID string) []sys.Track {
	tracks := make([]sys.Track, 0, len(entries))
	for _, e := range entries {
		u := strings.TrimSpace(e.URL)
		id := extractVideoID(u)
		if id == "" || id == skipID {
			continue
		}
		tracks = append(tracks, sys.Track{
			Title:      strings.TrimSpace(e.Title),
			Author:     strings.TrimSpace(e.Uploader),
			URI:        "https://www.youtube.com/watch?v=" + id,
			DurationMs: e.Duration.Milliseconds(),
			SourceName: SourceYouTube,
			Thumbnail:  thumbnailFor(id),
		})
	}
	return tracks
}

func thumbnailFor(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isPlaylistURL(u string) bool {
	return strings.Contains(u, "list=") && extractVideoID(u) == ""
}

func extractVideoID(u string) string {
	for _, marker := range []string{"v=", "youtu.be/", "shorts/"} {
		idx := strings.Index(u, marker)
		if idx < 0 {
			continue
		}
		rest := u[idx+len(marker):]
		if end := strings.IndexAny(rest, "&?#/"); end >= 0 {
			rest = rest[:end]
		}
		return rest
	}
	return ""
}

// parseDurationColon parses duration strings like "3:20" or "1:05:20"
func parseDurationColon(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

// --- yt-dlp ---

type ytdlpPlaylistEntry struct {
	URL, Title, Uploader string
	Duration             time.Duration
}

func ytdlpExtractPlaylist(ctx context.Context, u string, m int) ([]ytdlpPlaylistEntry, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", m)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, u)
	if err != nil {
		return nil, err
	}

	ls := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	es := make([]ytdlpPlaylistEntry, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 3 {
			continue
		}
		e := ytdlpPlaylistEntry{URL: ps[0], Title: ps[1], Uploader: ps[2]}
		if len(ps) > 3 {
			if secs, err := strconv.ParseFloat(ps[3], 64); err == nil {
				e.Duration = time.Duration(secs * float64(time.Second))
			}
		}
		es = append(es, e)
	}
	return es, nil
}

func ytdlpResolveTrack(ctx context.Context, u string) (sys.Track, error) {
	res, err := ytdlp.New().
		Print("%(title)s\t%(uploader)s\t%(duration)s\t%(id)s\t%(webpage_url)s\t%(thumbnail)s").
		NoPlaylist().
		NoSimulate().
		IgnoreConfig().
		NoWarnings().
		Run(ctx, "--skip-download", u)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return sys.Track{}, fmt.Errorf("DRM: %w", err)
		}
		return sys.Track{}, err
	}

	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 6 {
			continue
		}
		t := sys.Track{
			Title:      ps[0],
			Author:     ps[1],
			URI:        ps[4],
			SourceName: SourceYouTube,
			Thumbnail:  ps[5],
		}
		if secs, err := strconv.ParseFloat(ps[2], 64); err == nil {
			t.DurationMs = int64(secs * 1000)
		}
		if strings.Contains(u, "music.youtube.com") {
			t.SourceName = SourceYouTubeMusic
		}
		if t.URI == "" || t.URI == "NA" {
			t.URI = u
		}
		return t, nil
	}
	return sys.Track{}, errNoMetadata
}
