package proc

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/jukebox/sys"
)

// PresenceConfigKey is the bot_config key that hides the rotating presence when "false".
const PresenceConfigKey = "presence_visible"

var StartTime = time.Now().UTC()

func rotationInterval() time.Duration {
	return time.Duration(15+rand.Intn(46)) * time.Second
}

// PresenceRotator cycles the bot's listening activity through live playback stats.
type PresenceRotator struct {
	voice    *VoiceSystem
	autoplay *AutoplayManager

	mu   sync.Mutex
	last string
}

func NewPresenceRotator(voice *VoiceSystem, autoplay *AutoplayManager) *PresenceRotator {
	return &PresenceRotator{voice: voice, autoplay: autoplay}
}

// Daemon returns a starter for sys.RegisterDaemon bound to a ready client.
func (p *PresenceRotator) Daemon(client *bot.Client) func(ctx context.Context) (bool, func(), func()) {
	return func(ctx context.Context) (bool, func(), func()) {
		ctx, cancel := context.WithCancel(ctx)
		run := func() {
			for {
				next := rotationInterval()
				p.update(ctx, client, next)
				select {
				case <-time.After(next):
				case <-ctx.Done():
					return
				}
			}
		}
		return client != nil, run, cancel
	}
}

func (p *PresenceRotator) update(ctx context.Context, client *bot.Client, next time.Duration) {
	visible, err := sys.GetBotConfig(ctx, PresenceConfigKey)
	if err != nil || visible == "false" {
		_ = client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	text := p.pick(p.candidates(client.Gateway.Latency()))
	err = client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	)
	if err != nil {
		sys.LogPresence(sys.MsgPresenceUpdateFail, err)
		return
	}
	sys.LogPresence(sys.MsgPresenceRotated, text, next)
}

// candidates lists the presence lines that currently have something to say.
// Uptime is always present.
func (p *PresenceRotator) candidates(latency time.Duration) []string {
	var out []string
	if n := p.voice.Len(); n > 0 {
		out = append(out, fmt.Sprintf("music in %d servers", n))
	}
	if n := p.autoplay.EnabledCount(); n > 0 {
		out = append(out, fmt.Sprintf("autoplay in %d servers", n))
	}
	if latency > 0 {
		out = append(out, fmt.Sprintf("Ping: %dms", latency.Milliseconds()))
	}
	uptime := time.Since(StartTime)
	out = append(out, fmt.Sprintf("Uptime: %dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60))
	return out
}

// pick avoids repeating the previous line whenever another one is available.
func (p *PresenceRotator) pick(choices []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh []string
	for _, c := range choices {
		if c != p.last {
			fresh = append(fresh, c)
		}
	}
	selected := ""
	switch {
	case len(fresh) > 0:
		selected = fresh[rand.Intn(len(fresh))]
	case len(choices) > 0:
		selected = choices[0]
	}
	p.last = selected
	return selected
}
