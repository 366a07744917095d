package event_handler

import (
	"fmt"
	"log/slog"
	"time"

	"revent/src-server/mutate"
	"revent/src-server/recur"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

func deleteCmd(as *utils.AppState, cmdInfo *[]*discordgo.ApplicationCommandOption, cmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	id := "delete"
	*cmdInfo = append(*cmdInfo, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        id,
		Description: "Delete an event.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "event-id",
				Description: "ID of the event to delete.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "occurrence",
				Description: "For repeating events, which occurrence date to delete.",
				Required:    false,
			},
		},
	})
	cmdHandler[id] = deleteHandler(as)
}

func deleteHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		interaction := i.Interaction

		// respond to original request
		if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-delete", "content", "deferring", "error", err)
			return nil
		}

		target, base, err := resolveTarget(as, optionMap(i))
		if err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't find event: %s", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-delete", "content", "event-not-found", "error", err)
			}
			return nil
		}

		scope := mutate.ScopeSingle
		if recur.IsSeriesMember(target) {
			// the breadth of a series delete is the user's call
			chosen, decided, timeout, err := askScope(as, s, &interaction, target.ID, "Delete:")
			if err != nil {
				msg := fmt.Sprintf("Can't ask for a scope, can't continue: %s", err.Error())
				if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
					Content: &msg,
				}); err != nil {
					slog.Warn("can't respond", "handler", "event-delete", "content", "ask-scope", "error", err)
				}
				return err
			}
			if timeout {
				if _, err := s.ChannelMessageSend(i.ChannelID, "Timed out waiting for a scope choice."); err != nil {
					slog.Warn("can't respond", "handler", "event-delete", "content", "timeout", "error", err)
				}
				return nil
			}
			if !decided {
				// respond to button request
				if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: "Event deletion canceled.",
					},
				}); err != nil {
					slog.Warn("can't respond", "handler", "event-delete", "content", "cancel", "error", err)
				}
				return nil
			}
			scope = chosen
		} else if isContinue, timeout, err := confirmDelete(as, s, &interaction, target.ID, eventEmbed(target)); err != nil {
			msg := fmt.Sprintf("Can't ask for confirmation, can't continue: %s", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-delete", "content", "ask-for-confirmation", "error", err)
			}
			return err
		} else if timeout {
			if _, err := s.ChannelMessageSend(i.ChannelID, "Timed out waiting for confirmation."); err != nil {
				slog.Warn("can't respond", "handler", "event-delete", "content", "timeout", "error", err)
			}
			return nil
		} else if !isContinue {
			// respond to button request
			if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "Event deletion canceled.",
				},
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-delete", "content", "cancel", "error", err)
			}
			return nil
		}

		userID := interactionUserID(i)
		sess := as.GetOrCreateSession(userID)
		if err := sess.Load(target, base); err != nil {
			as.CloseSession(userID)
			return fmt.Errorf("event_handler:delete: can't load session: %w", err)
		}
		if err := sess.Delete(scope); err != nil {
			as.CloseSession(userID)
			// respond to button request
			if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: fmt.Sprintf("Can't delete event\n```%s```", err.Error()),
				},
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-delete", "content", "delete-error", "error", err)
			}
			return fmt.Errorf("event_handler:delete: %w", err)
		}
		as.CloseSession(userID)

		// respond to button request
		if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: fmt.Sprintf("Event deleted (%s).", scope.String()),
			},
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-delete", "content", "deleted", "error", err)
		}
		return nil
	}
}

// confirmDelete shows a yes/no prompt for standalone deletes.
func confirmDelete(as *utils.AppState, s *discordgo.Session, interaction **discordgo.Interaction, eventID string, embed *discordgo.MessageEmbed) (bool, bool, error) {
	yesCustomId := "yes-" + eventID
	cancelCustomId := "cancel-" + eventID
	confirmCh := make(chan struct{})
	cancelCh := make(chan struct{})
	defer close(confirmCh)
	defer close(cancelCh)

	msg := "Is this the event you want to delete?"
	if _, err := s.InteractionResponseEdit(*interaction, &discordgo.WebhookEdit{
		Content: &msg,
		Embeds:  &[]*discordgo.MessageEmbed{embed},
		Components: &[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Yes",
						Style:    discordgo.SuccessButton,
						CustomID: yesCustomId,
					},
					discordgo.Button{
						Label:    "No",
						Style:    discordgo.DangerButton,
						CustomID: cancelCustomId,
					},
				},
			},
		},
	}); err != nil {
		return false, false, fmt.Errorf("confirmDelete: %w", err)
	}
	as.AddAppCmdHandler(yesCustomId, func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		*interaction = i.Interaction
		confirmCh <- struct{}{}
		return nil
	})
	as.AddAppCmdHandler(cancelCustomId, func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		*interaction = i.Interaction
		cancelCh <- struct{}{}
		return nil
	})
	defer as.RemoveAppCmdHandler(yesCustomId)
	defer as.RemoveAppCmdHandler(cancelCustomId)

	select {
	case <-time.After(time.Minute * 2):
		return false, true, nil
	case <-cancelCh:
		return false, false, nil
	case <-confirmCh:
		return true, false, nil
	}
}
