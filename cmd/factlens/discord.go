package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/config"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/notify"
	"github.com/NullMeDev/factlens/internal/verify"
)

const discordAnalyzeTimeout = 45 * time.Second

var verifyCommand = &discordgo.ApplicationCommand{
	Name:        "verify",
	Description: "Check whether a news article looks fake",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "url",
			Description: "Link to the article",
			Required:    false,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "text",
			Description: "Article text to check",
			Required:    false,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "title",
			Description: "Headline, used to search for related coverage",
			Required:    false,
		},
	},
}

// Bot serves the /verify slash command and posts feed alerts.
type Bot struct {
	session    *discordgo.Session
	service    *verify.Service
	cfg        config.DiscordConfig
	log        *logging.Logger
	errors     *apperror.Handler
	registered []*discordgo.ApplicationCommand
}

// NewBot creates a Discord session; Start connects it.
func NewBot(cfg config.DiscordConfig, svc *verify.Service, log *logging.Logger, errs *apperror.Handler) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to create Discord session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		session: session,
		service: svc,
		cfg:     cfg,
		log:     log.With("component", "discord"),
		errors:  errs,
	}, nil
}

// Start opens the gateway connection and registers the slash command.
func (b *Bot) Start() error {
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.handleInteractionCreate)

	if err := b.session.Open(); err != nil {
		return apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to open Discord connection", err)
	}

	cmd, err := b.session.ApplicationCommandCreate(b.cfg.AppID, b.cfg.GuildID, verifyCommand)
	if err != nil {
		b.session.Close()
		return apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to register /verify", err)
	}
	b.registered = append(b.registered, cmd)
	return nil
}

// Stop removes guild commands and closes the connection. Global commands are
// left in place because Discord takes up to an hour to propagate them.
func (b *Bot) Stop() error {
	if b.cfg.GuildID != "" {
		for _, cmd := range b.registered {
			if err := b.session.ApplicationCommandDelete(b.cfg.AppID, b.cfg.GuildID, cmd.ID); err != nil {
				b.log.Warning("Failed to remove command %s: %v", cmd.Name, err)
			}
		}
	}
	return b.session.Close()
}

// Alert posts a fake-news alert to the configured channel.
func (b *Bot) Alert(r *verify.Report) {
	if b.cfg.AlertChannelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(b.cfg.AlertChannelID, notify.AlertEmbed(r)); err != nil {
		b.fail(apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to post alert", err))
	}
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("Bot is ready! Logged in as %s", r.User.Username)
	if err := s.UpdateGameStatus(0, "Checking news | /verify"); err != nil {
		b.log.Warning("Failed to update status: %v", err)
	}
}

func (b *Bot) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.ApplicationCommandData().Name != verifyCommand.Name {
		return
	}
	defer apperror.RecoverFromPanic(b.errors, "discord")

	req, err := verifyRequest(i.ApplicationCommandData().Options)
	if err != nil {
		b.respondEphemeral(s, i, "❌ "+err.Error())
		return
	}

	// analysis can outlast the three seconds Discord allows for a reply
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.fail(apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to acknowledge interaction", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordAnalyzeTimeout)
	defer cancel()

	report, err := b.service.Analyze(ctx, req)
	if err != nil {
		content := "❌ " + userMessage(err)
		b.editResponse(s, i, &discordgo.WebhookEdit{Content: &content})
		return
	}
	b.editResponse(s, i, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{notify.ReportEmbed(report)},
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, edit *discordgo.WebhookEdit) {
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.fail(apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to send response", err))
	}
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.fail(apperror.NewDiscordError(apperror.ErrDiscordConnection, "failed to respond", err))
	}
}

func (b *Bot) fail(err error) {
	b.log.Error("%v", err)
	if b.errors != nil {
		b.errors.Handle(err, "discord")
	}
}

// verifyRequest turns the slash command options into an analysis request.
func verifyRequest(options []*discordgo.ApplicationCommandInteractionDataOption) (verify.Request, error) {
	req := verify.Request{Origin: verify.OriginDiscord}
	for _, opt := range options {
		switch opt.Name {
		case "url":
			req.URL = strings.TrimSpace(opt.StringValue())
		case "text":
			req.Text = strings.TrimSpace(opt.StringValue())
		case "title":
			req.Title = strings.TrimSpace(opt.StringValue())
		}
	}
	switch {
	case req.URL == "" && req.Text == "":
		return req, fmt.Errorf("give me either a `url` or some `text` to check")
	case req.URL != "" && req.Text != "":
		return req, fmt.Errorf("use either `url` or `text`, not both")
	}
	return req, nil
}

// userMessage is the reply shown for a failed analysis.
func userMessage(err error) string {
	switch apperror.CodeOf(err) {
	case apperror.ErrExtractInvalidURL:
		return "That does not look like a valid article URL."
	case apperror.ErrExtractTimeout:
		return "The article took too long to load. Try again later."
	case apperror.ErrExtractStatus, apperror.ErrExtractFetch:
		return "I could not download that article."
	case apperror.ErrExtractEmpty:
		return "I could not find any article text on that page."
	case apperror.ErrExtractTooLarge:
		return "That page is too large to analyse."
	default:
		return "Something went wrong while analysing the article."
	}
}
