package main

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/verify"
)

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func TestVerifyRequest(t *testing.T) {
	req, err := verifyRequest([]*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("url", "  https://news.example/story "),
		stringOption("title", "Budget passes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://news.example/story", req.URL)
	assert.Equal(t, "Budget passes", req.Title)
	assert.Equal(t, verify.OriginDiscord, req.Origin)

	req, err = verifyRequest([]*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("text", "The parliament approved the budget."),
	})
	require.NoError(t, err)
	assert.Equal(t, "The parliament approved the budget.", req.Text)

	_, err = verifyRequest(nil)
	assert.Error(t, err)

	_, err = verifyRequest([]*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("url", "https://news.example/story"),
		stringOption("text", "both"),
	})
	assert.ErrorContains(t, err, "not both")
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, userMessage(apperror.NewExtractError(apperror.ErrExtractInvalidURL, "bad", nil)), "valid article URL")
	assert.Contains(t, userMessage(apperror.NewExtractError(apperror.ErrExtractTimeout, "slow", nil)), "too long")
	assert.Contains(t, userMessage(apperror.NewExtractError(apperror.ErrExtractEmpty, "empty", nil)), "article text")
	assert.Contains(t, userMessage(assert.AnError), "Something went wrong")
}

func TestVerifyCommandOptions(t *testing.T) {
	names := make([]string, 0, len(verifyCommand.Options))
	for _, opt := range verifyCommand.Options {
		assert.False(t, opt.Required)
		names = append(names, opt.Name)
	}
	assert.Equal(t, []string{"url", "text", "title"}, names)
}
