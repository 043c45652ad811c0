package home

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const (
	autocompleteTimeout = 2 * time.Second
	resolveTimeout      = 30 * time.Second
)

var (
	errNotInVoice        = errors.New(sys.ErrVoiceNotInChannel)
	errSearchUnavailable = errors.New("search is not configured")
)

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")
	mode, _ := data.OptString("queue")
	now := mode == "now"

	// Instant Defer
	_ = event.DeferCreateMessage(false)

	reply, err := startPlayback(event, query, now)
	if err != nil {
		sys.LogVoice(sys.MsgVoiceStreamFail, query, err)
		reply = fmt.Sprintf(sys.ErrVoicePlayFail, err)
		if errors.Is(err, errNotInVoice) {
			reply = sys.ErrVoiceNotInChannel
		}
	}
	if on, ok := data.OptBool("autoplay"); ok && err == nil {
		applyAutoplayOption(event, on)
	}

	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetContent(reply).
		Build())
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" || searcher == nil {
		return
	}
	query := focused.String()
	if len(query) < 3 {
		_ = event.AutocompleteResult(nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
	defer cancel()
	res, err := searcher.SearchByURIOrText(ctx, query)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	var choices []discord.AutocompleteChoice
	for i, t := range res.Tracks {
		if i >= 25 {
			break
		}
		name := sourcePrefix(t.SourceName) + t.Title
		if t.Author != "" {
			name += " · " + t.Author
		}
		// Use URL as value for instant playback
		val := t.URI
		if len(val) > 100 {
			val = t.Query()
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  truncateRunes(name, 100),
			Value: truncateRunes(val, 100),
		})
	}
	_ = event.AutocompleteResult(choices)
}

// startPlayback resolves the query, joins the caller's channel and queues the result.
func startPlayback(event *events.ApplicationCommandInteractionCreate, query string, now bool) (string, error) {
	guildID := event.GuildID()
	if searcher == nil {
		return "", errSearchUnavailable
	}
	if guildID == nil {
		return "", errNotInVoice
	}
	voiceState, ok := event.Client().Caches.VoiceState(*guildID, event.User().ID)
	if !ok || voiceState.ChannelID == nil {
		return "", errNotInVoice
	}

	vm := proc.GetVoiceManager()
	// Prepare first so the session exists while the join is still in flight.
	_ = vm.Prepare(event.Client(), *guildID, *voiceState.ChannelID, event.Channel().ID())

	joinErr := make(chan error, 1)
	go func() {
		joinErr <- vm.Join(context.Background(), event.Client(), *guildID, *voiceState.ChannelID, event.Channel().ID())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	res, err := searcher.SearchByURIOrText(ctx, query)
	if jerr := <-joinErr; jerr != nil {
		return "", jerr
	}
	if err != nil {
		return "", err
	}

	tracks := res.Tracks
	switch res.Status {
	case proc.SearchTrack, proc.SearchSearch:
		tracks = tracks[:min(1, len(tracks))]
	case proc.SearchPlaylist:
	default:
		tracks = nil
	}
	if len(tracks) == 0 {
		return fmt.Sprintf(sys.ErrVoiceNoResults, query), nil
	}

	for i := range tracks {
		tracks[i].RequesterID = event.User().ID
	}
	if err := vm.Play(*guildID, tracks[0], now); err != nil {
		return "", err
	}
	for _, t := range tracks[1:] {
		if err := vm.Play(*guildID, t, false); err != nil {
			return "", err
		}
	}

	if len(tracks) > 1 {
		return fmt.Sprintf(sys.MsgVoiceReplyPlaylist, len(tracks)), nil
	}
	if now {
		return fmt.Sprintf(sys.MsgVoiceReplyPlaying, tracks[0].Title, tracks[0].URI), nil
	}
	return fmt.Sprintf(sys.MsgVoiceReplyQueued, tracks[0].Title, tracks[0].URI), nil
}

func sourcePrefix(source string) string {
	cfg := sys.GlobalConfig
	if cfg == nil {
		return ""
	}
	switch source {
	case proc.SourceYouTube:
		return cfg.YoutubePrefix + " "
	case proc.SourceYouTubeMusic:
		return cfg.YTMusicPrefix + " "
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
