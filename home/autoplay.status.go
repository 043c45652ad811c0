package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handleAutoplayStatus(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	a, ok := autoplays.Get(*event.GuildID())
	if !ok {
		replyEphemeral(event, sys.ErrAutoplayNoSession)
		return
	}

	replyEphemeral(event, formatAutoplayStatus(a.Status(), autoplays.Config()))
}

func formatAutoplayStatus(st proc.AutoplayStatus, cfg sys.AutoplayConfig) string {
	state := "disabled"
	health := sys.MsgAutoplayStatusIdle
	if st.Enabled {
		state = "enabled"
		health = sys.MsgAutoplayStatusStalled
		if st.Working {
			health = sys.MsgAutoplayStatusWorking
		}
	}

	owner := "-"
	if st.OwnerID != 0 {
		owner = discord.UserMention(st.OwnerID)
	}
	last := sys.MsgAutoplayStatusNever
	if !st.LastSuccessAt.IsZero() {
		last = discord.FormattedTimestampMention(st.LastSuccessAt.Unix(), discord.TimestampStyleRelative)
	}

	return fmt.Sprintf(sys.MsgAutoplayStatusReport,
		state, health, owner, st.HistorySize,
		st.ConsecutiveFailures, cfg.MaxConsecutiveFailures,
		st.FallbackAttempts, cfg.MaxFallbackAttempts,
		last)
}
