// Package notify formats analysis reports as Discord embeds and delivers
// them to webhooks.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NullMeDev/factlens/internal/links"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/verify"
)

// Embed colors
const (
	ColorFake  = 0xE74C3C // red
	ColorReal  = 0x2ECC71 // green
	ColorError = 0x808080 // gray
	ColorAlert = 0xFFA500 // orange
)

const (
	maxTitle       = 256
	maxDescription = 4096
	maxFieldValue  = 1024
)

// LabelColor returns the embed color for a verdict.
func LabelColor(label predict.Label) int {
	switch label {
	case predict.LabelFake:
		return ColorFake
	case predict.LabelReal:
		return ColorReal
	default:
		return ColorError
	}
}

// ReportEmbed renders a report as a Discord embed: the verdict in the title,
// probabilities as inline fields and suggested links as fields below.
func ReportEmbed(r *verify.Report) *discordgo.MessageEmbed {
	out := r.Prediction
	embed := &discordgo.MessageEmbed{
		Color:     LabelColor(out.Label),
		Timestamp: r.AnalyzedAt.Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "factlens | " + r.Origin,
		},
	}

	if out.IsError() {
		embed.Title = "Analysis failed"
		embed.Description = truncate(out.Error, maxDescription)
		return embed
	}

	embed.Title = truncate(fmt.Sprintf("%s %s news (%.2f%% confidence)", verdictIcon(out.Label), out.Label, out.Confidence), maxTitle)
	embed.URL = r.URL

	var desc strings.Builder
	if r.Title != "" {
		desc.WriteString("**" + r.Title + "**\n")
	}
	if r.Excerpt != "" {
		desc.WriteString(r.Excerpt)
	}
	if out.Uncertain {
		desc.WriteString("\n\n_The model is not confident either way; treat this result with care._")
	}
	embed.Description = truncate(desc.String(), maxDescription)

	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Fake", Value: fmt.Sprintf("%.2f%%", out.FakeProbability), Inline: true},
		{Name: "Real", Value: fmt.Sprintf("%.2f%%", out.RealProbability), Inline: true},
		{Name: "Words", Value: fmt.Sprintf("%d", out.WordCount), Inline: true},
	}
	if field := linkField("Fact-check", r.Links.FactCheck); field != nil {
		embed.Fields = append(embed.Fields, field)
	}
	if field := linkField("Related news", r.Links.Related); field != nil {
		embed.Fields = append(embed.Fields, field)
	}
	return embed
}

// AlertEmbed is the embed posted when a watched feed item looks fake.
func AlertEmbed(r *verify.Report) *discordgo.MessageEmbed {
	embed := ReportEmbed(r)
	embed.Color = ColorAlert
	embed.Author = &discordgo.MessageEmbedAuthor{Name: "Possible fake news in a watched feed"}
	return embed
}

func linkField(name string, list []links.Link) *discordgo.MessageEmbedField {
	if len(list) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range list {
		line := fmt.Sprintf("[%s](%s)\n", l.Title, l.URL)
		if b.Len()+len(line) > maxFieldValue {
			break
		}
		b.WriteString(line)
	}
	if b.Len() == 0 {
		return nil
	}
	return &discordgo.MessageEmbedField{Name: name, Value: strings.TrimSpace(b.String())}
}

func verdictIcon(label predict.Label) string {
	if label == predict.LabelFake {
		return "⚠️"
	}
	return "✅"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
