package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const queuePageSize = 10

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	s := proc.GetVoiceManager().GetSession(*event.GuildID())
	if s == nil {
		replyEphemeral(event, sys.ErrVoiceNothingPlaying)
		return
	}
	cur, playing := s.Current()
	queue := s.Queue()
	if !playing && len(queue) == 0 {
		replyEphemeral(event, sys.ErrVoiceNothingPlaying)
		return
	}

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(formatQueue(cur, playing, queue)).
		Build())
}

func formatQueue(cur sys.Track, playing bool, queue []sys.Track) string {
	var sb strings.Builder
	if playing {
		sb.WriteString(fmt.Sprintf(sys.MsgVoiceReplyQueueHead, cur.Title, cur.URI))
		sb.WriteString("\n")
	}
	for i, t := range queue {
		if i >= queuePageSize {
			sb.WriteString(fmt.Sprintf(sys.MsgVoiceReplyQueueMore, len(queue)-queuePageSize))
			break
		}
		line := fmt.Sprintf("`%d.` %s", i+1, t.Title)
		if t.Author != "" {
			line += " · " + t.Author
		}
		if d := t.Duration(); d > 0 {
			line += fmt.Sprintf(" (%s)", d.Round(time.Second))
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimSpace(sb.String())
}
