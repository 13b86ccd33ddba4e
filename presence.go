package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/masahide/huginn-discord/pkg/huginn"
)

const offlinePresence = "Server offline"

// presenceText returns the game status shown under the bot's name, or
// ok=false when the server is unreachable or offline.
func presenceText(res huginn.Result) (string, bool) {
	st, ok := res.Status()
	if !ok || !st.Online {
		return "", false
	}
	return fmt.Sprintf("%d/%d players", st.Players, st.MaxPlayers), true
}

type presenceUpdater interface {
	UpdateGameStatus(idle int, name string) error
	UpdateCustomStatus(state string) error
}

var _ presenceUpdater = (*discordgo.Session)(nil)

func (d *discordbot) updatePresence(ctx context.Context, p presenceUpdater) error {
	res, err := d.fetch(ctx)
	if err != nil {
		return err
	}
	text, ok := presenceText(res)
	if !ok {
		return p.UpdateCustomStatus(offlinePresence)
	}
	return p.UpdateGameStatus(0, text)
}

func (d *discordbot) presenceLoop(ctx context.Context, p presenceUpdater, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := d.updatePresence(ctx, p); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Error updating presence")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
