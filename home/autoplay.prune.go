package home

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

var (
	errPruneParse  = errors.New(sys.ErrAutoplayPruneParse)
	errPruneFuture = errors.New(sys.ErrAutoplayPruneFuture)
)

func handleAutoplayPrune(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !canManageHistory(event) {
		replyEphemeral(event, sys.ErrAutoplayManageGuild)
		return
	}
	a, ok := autoplays.Get(*event.GuildID())
	if !ok {
		replyEphemeral(event, sys.ErrAutoplayNoSession)
		return
	}

	now := time.Now()
	cutoff, err := parsePruneCutoff(data.String("older_than"), now)
	if err != nil {
		replyEphemeral(event, err.Error())
		return
	}

	n := a.PruneHistory(now.Sub(cutoff))
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf(sys.MsgAutoplayHistoryPruned, n,
			discord.FormattedTimestampMention(cutoff.Unix(), discord.TimestampStyleRelative))).
		Build())
}

// parsePruneCutoff accepts natural language ("2 hours ago", "yesterday") or a
// Go duration ("30m") counted back from now.
func parsePruneCutoff(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, errPruneParse
	}

	if d, err := time.ParseDuration(input); err == nil {
		if d < 0 {
			return time.Time{}, errPruneFuture
		}
		return now.Add(-d), nil
	}

	if err := initPruneParser(); err != nil {
		sys.LogWarn(sys.MsgGenericError, err)
		return time.Time{}, errPruneParse
	}
	result, err := pruneParser.ParseDate(input, now)
	if err != nil || result == nil {
		return time.Time{}, errPruneParse
	}
	if result.After(now) {
		return time.Time{}, errPruneFuture
	}
	return *result, nil
}
