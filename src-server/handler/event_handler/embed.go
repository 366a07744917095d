package event_handler

import (
	"fmt"
	"strings"

	"revent/src-server/event"
	"revent/src-server/recur"

	"github.com/bwmarrin/discordgo"
)

// eventEmbed renders one occurrence for Discord.
func eventEmbed(ev *event.Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Description,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Start Date",
				Value:  fmt.Sprintf("<t:%d:f>", ev.StartUnixUTC),
				Inline: true,
			},
			{
				Name:   "End Date",
				Value:  fmt.Sprintf("<t:%d:f>", ev.EndUnixUTC),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: ev.ID,
		},
	}
	if ev.Location != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Location",
			Value: ev.Location,
		})
	}
	if ev.Category != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Category",
			Value:  ev.Category,
			Inline: true,
		})
	}
	if ev.Meeting != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Meeting",
			Value: ev.Meeting,
		})
	}
	if seriesNote := describeSeries(ev); seriesNote != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Repeats",
			Value: seriesNote,
		})
	}
	return embed
}

func describeSeries(ev *event.Event) string {
	switch {
	case ev.Recurrence != "":
		rule, err := recur.Parse(ev.Recurrence)
		if err != nil {
			return ev.Recurrence
		}
		return describeRule(rule)
	case ev.IsVirtual:
		return "part of a repeating series"
	case ev.RecurrenceGroupID != "":
		return "modified occurrence of a repeating series"
	}
	return ""
}

func describeRule(rule recur.Rule) string {
	switch rule.Freq {
	case recur.FreqDaily:
		if rule.Interval > 1 {
			return fmt.Sprintf("every %d days", rule.Interval)
		}
		return "daily"
	case recur.FreqWeekly:
		note := "weekly"
		if rule.Interval > 1 {
			note = fmt.Sprintf("every %d weeks", rule.Interval)
		}
		if len(rule.ByDay) > 0 {
			days := make([]string, len(rule.ByDay))
			for i, day := range rule.ByDay {
				days[i] = day.String()[:3]
			}
			note += " on " + strings.Join(days, ", ")
		}
		return note
	case recur.FreqBiweekly:
		return "every 2 weeks"
	case recur.FreqMonthly:
		return "monthly"
	case recur.FreqYearly:
		return "yearly"
	}
	return "custom schedule"
}
