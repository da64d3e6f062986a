// Package discord adapts the transport interface onto the Discord Bot API:
// modmail surfaces are text channels under a per-guild category, user
// delivery goes over DMs, and inbound DMs feed the router.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/router"
	"github.com/xaenox/modmail/internal/transport"
)

const embedColor = 0x3498db

// Adapter implements transport.Transport over a discordgo session and feeds
// inbound DMs into the router.
type Adapter struct {
	session *discordgo.Session
	router  *router.Router
	logger  *zap.Logger
}

func New(token string, logger *zap.Logger) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{
		session: session,
		logger:  logger,
	}, nil
}

// SetRouter wires the inbound DM handler target. Must be called before Start.
func (a *Adapter) SetRouter(r *router.Router) {
	a.router = r
}

// Start opens the gateway connection and begins receiving DMs.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.handleMessage)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	user, err := a.session.User("@me")
	if err != nil {
		a.session.Close()
		return fmt.Errorf("failed to fetch bot identity: %w", err)
	}

	a.logger.Info("discord connected",
		zap.String("username", user.Username),
		zap.String("id", user.ID))
	return nil
}

func (a *Adapter) Stop() error {
	return a.session.Close()
}

func (a *Adapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Only DMs from non-bots are modmail candidates.
	if m.GuildID != "" || m.Author == nil || m.Author.Bot {
		return
	}
	if a.router == nil {
		return
	}

	candidates := make([]string, 0, len(s.State.Guilds))
	for _, g := range s.State.Guilds {
		candidates = append(candidates, g.ID)
	}

	msg := models.InboundMessage{
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, att.URL)
	}

	go a.intake(m.Author.ID, candidates, msg)
}

func (a *Adapter) intake(userID string, candidates []string, msg models.InboundMessage) {
	ctx := context.Background()

	result, err := a.router.Intake(ctx, userID, candidates, msg)
	switch result.Status {
	case router.RateLimited:
		notice := transport.Notice{Body: result.Notice}
		if notice.Body == "" {
			notice.Body = "You're sending messages too quickly."
		}
		if err := a.DeliverToUser(ctx, userID, notice); err != nil {
			a.logger.Warn("failed to send cooldown notice", zap.Error(err))
		}
	case router.DeliveryFailed:
		a.logger.Error("modmail intake failed",
			zap.String("user_id", userID), zap.Error(err))
		notice := transport.Notice{
			Body: "An error occurred while processing your message. Please try again later.",
		}
		if err := a.DeliverToUser(ctx, userID, notice); err != nil {
			a.logger.Warn("failed to send error notice", zap.Error(err))
		}
	}
}

func (a *Adapter) ProvisionSurface(ctx context.Context, policy *models.GuildPolicy, user models.UserProfile) (string, error) {
	if policy.CategoryID == "" {
		return "", &transport.ProvisioningError{
			GuildID: policy.GuildID,
			Err:     fmt.Errorf("no modmail category configured"),
		}
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares its id with the guild
			ID:   policy.GuildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	for _, roleID := range policy.StaffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}
	if me := a.session.State.User; me != nil {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    me.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageMessages,
		})
	}

	channel, err := a.session.GuildChannelCreateComplex(policy.GuildID, discordgo.GuildChannelCreateData{
		Name:                 channelName(user.Username),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("Modmail thread for %s (ID: %s)", user.Username, user.UserID),
		ParentID:             policy.CategoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", &transport.ProvisioningError{GuildID: policy.GuildID, Err: err}
	}
	return channel.ID, nil
}

func channelName(username string) string {
	name := strings.ToLower(username)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
	return "modmail-" + strings.Trim(name, "-")
}

func (a *Adapter) SurfaceExists(ctx context.Context, guildID, surfaceRef string) bool {
	if surfaceRef == "" {
		return false
	}
	if _, err := a.session.State.Channel(surfaceRef); err == nil {
		return true
	}
	_, err := a.session.Channel(surfaceRef)
	return err == nil
}

func (a *Adapter) ForwardToSurface(ctx context.Context, surfaceRef string, msg models.InboundMessage, from models.UserProfile, header *models.UserSummary) error {
	var embeds []*discordgo.MessageEmbed
	if header != nil {
		embeds = append(embeds, userInfoEmbed(header))
	}
	embeds = append(embeds, messageEmbed(msg, from))

	if _, err := a.session.ChannelMessageSendComplex(surfaceRef, &discordgo.MessageSend{Embeds: embeds}); err != nil {
		return &transport.DeliveryError{Target: surfaceRef, Err: err}
	}
	return nil
}

func (a *Adapter) DeliverToUser(ctx context.Context, userID string, notice transport.Notice) error {
	dm, err := a.session.UserChannelCreate(userID)
	if err != nil {
		return &transport.DeliveryError{Target: userID, Err: err}
	}

	embed := &discordgo.MessageEmbed{
		Title:       notice.Title,
		Description: notice.Body,
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if notice.From != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: notice.From}
	}
	if notice.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: notice.Footer}
	}
	for name, value := range notice.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: name, Value: value,
		})
	}

	if _, err := a.session.ChannelMessageSendEmbed(dm.ID, embed); err != nil {
		return &transport.DeliveryError{Target: userID, Err: err}
	}
	return nil
}

func (a *Adapter) ArchiveSurface(ctx context.Context, guildID, surfaceRef string) error {
	channel, err := a.session.Channel(surfaceRef)
	if err != nil {
		return &transport.DeliveryError{Target: surfaceRef, Err: err}
	}

	name := channel.Name
	if !strings.HasPrefix(name, "closed-") {
		name = "closed-" + name
	}
	if _, err := a.session.ChannelEdit(surfaceRef, &discordgo.ChannelEdit{Name: name}); err != nil {
		return &transport.DeliveryError{Target: surfaceRef, Err: err}
	}
	return nil
}

func (a *Adapter) DeleteSurface(ctx context.Context, guildID, surfaceRef, reason string) error {
	if _, err := a.session.ChannelDelete(surfaceRef); err != nil {
		return &transport.DeliveryError{Target: surfaceRef, Err: err}
	}
	return nil
}

func (a *Adapter) Profile(ctx context.Context, guildID, userID string) (models.UserProfile, error) {
	user, err := a.session.User(userID)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}

	profile := models.UserProfile{
		UserID:   userID,
		Username: user.Username,
	}
	if created, err := discordgo.SnowflakeTimestamp(userID); err == nil {
		profile.CreatedAt = created
	}

	member, err := a.session.State.Member(guildID, userID)
	if err != nil {
		member, err = a.session.GuildMember(guildID, userID)
	}
	if err == nil && member != nil {
		profile.IsMember = true
		profile.JoinedAt = member.JoinedAt
	}

	return profile, nil
}

func userInfoEmbed(summary *models.UserSummary) *discordgo.MessageEmbed {
	p := summary.Profile
	embed := &discordgo.MessageEmbed{
		Title: "User Information",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("%s (%s)", p.Username, p.UserID)},
			{Name: "Account Created", Value: fmt.Sprintf("<t:%d:R>", p.CreatedAt.Unix()), Inline: true},
		},
	}

	if p.IsMember {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Joined Server", Value: fmt.Sprintf("<t:%d:R>", p.JoinedAt.Unix()), Inline: true,
		})
	} else {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Server Member", Value: "No", Inline: true,
		})
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Previous Threads", Value: fmt.Sprintf("%d", summary.TotalThreads), Inline: true,
	})
	if summary.LastThreadAt != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Last Thread", Value: fmt.Sprintf("<t:%d:R>", summary.LastThreadAt.Unix()), Inline: true,
		})
	}
	return embed
}

func isImageURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func messageEmbed(msg models.InboundMessage, from models.UserProfile) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Description: msg.Content,
		Color:       embedColor,
		Author:      &discordgo.MessageEmbedAuthor{Name: from.Username},
		Timestamp:   msg.Timestamp.UTC().Format(time.RFC3339),
	}

	if len(msg.Attachments) == 1 && isImageURL(msg.Attachments[0]) {
		embed.Image = &discordgo.MessageEmbedImage{URL: msg.Attachments[0]}
	} else if len(msg.Attachments) > 0 {
		links := make([]string, 0, len(msg.Attachments))
		for _, url := range msg.Attachments {
			links = append(links, url)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Attachments",
			Value: strings.Join(links, "\n"),
		})
	}
	return embed
}
