package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"revent/src-server/event"
	"revent/src-server/model"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

const reminderPollInterval = time.Second * 30

// ReminderNotify polls the expanded occurrence view and pings the
// calendar's channel when a reminder offset comes due. Virtual
// occurrences have no row to mark, so delivery is tracked in memory;
// a restart may repeat a reminder, never skip one silently.
func ReminderNotify(as *utils.AppState) {
	if as.DgSession == nil {
		slog.Info("ReminderNotify: no discord session, reminders disabled")
		return
	}

	sent := make(map[string]int64)
	for {
		time.Sleep(reminderPollInterval)
		now := time.Now().UTC()

		calendarModels := make([]model.Calendar, 0)
		if err := as.BunDB.
			NewSelect().
			Model(&calendarModels).
			Scan(context.Background()); err != nil {
			slog.Error("ReminderNotify: can't get calendars", "error", err)
			continue
		}

		for _, calendarModel := range calendarModels {
			occurrences, err := as.Store.OccurrencesInWindow(
				context.Background(),
				calendarModel.ChannelID,
				now,
				now.Add(time.Hour*24),
			)
			if err != nil {
				slog.Error("ReminderNotify: can't expand occurrences", "calendar", calendarModel.ChannelID, "error", err)
				continue
			}

			for _, occurrence := range occurrences {
				for _, offset := range occurrence.Reminders {
					remindAt := occurrence.StartUnixUTC - offset
					if remindAt > now.Unix() || remindAt <= now.Add(-reminderPollInterval*2).Unix() {
						continue
					}
					key := fmt.Sprintf("%s/%d/%d", occurrence.ID, occurrence.RecurrenceDateUnixUTC, offset)
					if _, done := sent[key]; done {
						continue
					}
					if err := sendReminder(as, calendarModel.ChannelID, occurrence); err != nil {
						slog.Error("ReminderNotify: can't send reminder", "event", occurrence.ID, "error", err)
						continue
					}
					sent[key] = occurrence.StartUnixUTC
				}
			}
		}

		// forget reminders for occurrences that are long past
		cutoff := now.Add(-time.Hour * 24).Unix()
		for key, startUnixUTC := range sent {
			if startUnixUTC < cutoff {
				delete(sent, key)
			}
		}
	}
}

func sendReminder(as *utils.AppState, channelID string, occurrence *event.Event) error {
	_, err := as.DgSession.ChannelMessageSendEmbeds(channelID, []*discordgo.MessageEmbed{
		{
			Title:       occurrence.Title,
			Description: fmt.Sprintf("Starts <t:%d:R>.", occurrence.StartUnixUTC),
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:   "Start Date",
					Value:  fmt.Sprintf("<t:%d:f>", occurrence.StartUnixUTC),
					Inline: true,
				},
			},
			Footer: &discordgo.MessageEmbedFooter{
				Text: occurrence.ID,
			},
		},
	})
	return err
}
