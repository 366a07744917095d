package utils

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Send a hidden (ephemeral) reply to the interaction.
func InteractRespHiddenReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: content,
		},
	}); err != nil {
		slog.Warn("InteractRespHiddenReply: can't respond", "error", err)
	}
}
