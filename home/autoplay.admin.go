package home

import (
	"fmt"
	"slices"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func handleAutoplayAdmin(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil || *data.SubCommandName != "cleanup" || autoplays == nil {
		return
	}
	if !isOwner(event.User().ID.String()) {
		replyEphemeral(event, sys.ErrAutoplayOwnerOnly)
		return
	}

	removed := autoplays.PruneAll(autoplays.Config().HistoryRetention)
	sys.LogAutoplay(sys.MsgAutoplayDailyCleanup, removed, autoplays.Len())
	replyEphemeral(event, fmt.Sprintf(sys.MsgAutoplayAdminCleanup, removed, autoplays.Len()))
}

func isOwner(userID string) bool {
	return sys.GlobalConfig != nil && slices.Contains(sys.GlobalConfig.OwnerIDs, userID)
}
