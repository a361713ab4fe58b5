package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/groupguard/src/guard"
	"go.uber.org/zap"
)

// Client is the part of *discordgo.Session the platform adapter calls.
type Client interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

var _ Client = (*discordgo.Session)(nil)

const (
	confirmLabel = "I'm human"
	banReason    = "groupguard: join verification not completed"
)

var errNoGuardChannel = errors.New("no guard channel configured and the server has no system channel")

// PlatformConfig selects the restricted role and the channel challenges are posted in.
type PlatformConfig struct {
	RestrictedRoleID   string
	RestrictedRoleName string
	GuardChannelID     string
}

type pendingInteraction struct {
	interaction *discordgo.Interaction
	at          time.Time
}

// Platform implements guard.Platform over a Discord session. A guild is a group.
type Platform struct {
	client Client
	cfg    PlatformConfig
	log    *zap.Logger
	self   atomic.Int64

	roles        sync.Map // guild id -> restricted role id
	channels     sync.Map // guild id -> guard channel id
	interactions sync.Map // interaction id -> pendingInteraction
}

var _ guard.Platform = (*Platform)(nil)

func NewPlatform(client Client, cfg PlatformConfig, log *zap.Logger) *Platform {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RestrictedRoleName == "" {
		cfg.RestrictedRoleName = "Unverified"
	}
	return &Platform{client: client, cfg: cfg, log: log}
}

// SetSelf records the bot user once the gateway session is ready.
func (p *Platform) SetSelf(userID string) {
	if id, err := ParseID(userID); err == nil {
		p.self.Store(id)
	}
}

func (p *Platform) SelfID() int64 { return p.self.Load() }

func (p *Platform) Mention(userID int64) string { return Mention(userID) }

func (p *Platform) Restrict(ctx context.Context, groupID, userID int64) error {
	role, err := p.restrictedRole(ctx, groupID)
	if err != nil {
		return &guard.PlatformError{Op: "restrict", Err: err}
	}
	if err := p.client.GuildMemberRoleAdd(FormatID(groupID), FormatID(userID), role, discordgo.WithContext(ctx)); err != nil {
		return &guard.PlatformError{Op: "restrict", Err: err}
	}
	return nil
}

func (p *Platform) Unrestrict(ctx context.Context, groupID, userID int64) error {
	role, err := p.restrictedRole(ctx, groupID)
	if err != nil {
		return &guard.PlatformError{Op: "unrestrict", Err: err}
	}
	if err := p.client.GuildMemberRoleRemove(FormatID(groupID), FormatID(userID), role, discordgo.WithContext(ctx)); err != nil {
		return &guard.PlatformError{Op: "unrestrict", Err: err}
	}
	return nil
}

// Ban removes the member. Discord bans do not expire, so until is advisory and callers lift the
// ban with Unban.
func (p *Platform) Ban(ctx context.Context, groupID, userID int64, until time.Time) error {
	if err := p.client.GuildBanCreateWithReason(FormatID(groupID), FormatID(userID), banReason, 0, discordgo.WithContext(ctx)); err != nil {
		return &guard.PlatformError{Op: "ban", Err: err}
	}
	return nil
}

func (p *Platform) Unban(ctx context.Context, groupID, userID int64) error {
	if err := p.client.GuildBanDelete(FormatID(groupID), FormatID(userID), discordgo.WithContext(ctx)); err != nil {
		return &guard.PlatformError{Op: "unban", Err: err}
	}
	return nil
}

func (p *Platform) SendMessage(ctx context.Context, groupID int64, text, actionToken string) (*guard.MessageRef, error) {
	channelID, err := p.guardChannel(ctx, groupID)
	if err != nil {
		return nil, &guard.PlatformError{Op: "send_message", Err: err}
	}
	msg, err := p.client.ChannelMessageSendComplex(channelID, BuildMessage(text, actionToken), discordgo.WithContext(ctx))
	if err != nil {
		return nil, &guard.PlatformError{Op: "send_message", Err: err}
	}
	ref := &guard.MessageRef{}
	if ref.ChannelID, err = ParseID(msg.ChannelID); err != nil {
		ref.ChannelID, _ = ParseID(channelID)
	}
	ref.MessageID, _ = ParseID(msg.ID)
	return ref, nil
}

// BuildMessage renders an outgoing message. A non-empty actionToken adds the confirm button.
func BuildMessage(text, actionToken string) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
	}
	if actionToken != "" {
		send.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    confirmLabel,
					Style:    discordgo.SuccessButton,
					CustomID: guard.CallbackData(actionToken),
				},
			}},
		}
	}
	return send
}

func (p *Platform) DeleteMessage(ctx context.Context, groupID int64, ref guard.MessageRef) error {
	if ref.MessageID == 0 {
		return nil
	}
	channelID := FormatID(ref.ChannelID)
	if ref.ChannelID == 0 {
		var err error
		if channelID, err = p.guardChannel(ctx, groupID); err != nil {
			return &guard.PlatformError{Op: "delete_message", Err: err}
		}
	}
	if err := p.client.ChannelMessageDelete(channelID, FormatID(ref.MessageID), discordgo.WithContext(ctx)); err != nil {
		return &guard.PlatformError{Op: "delete_message", Err: err}
	}
	return nil
}

// TrackInteraction keeps a component interaction until AnswerCallback responds to it.
func (p *Platform) TrackInteraction(i *discordgo.Interaction) {
	p.interactions.Store(i.ID, pendingInteraction{interaction: i, at: time.Now()})
}

// AnswerCallback replies privately to the member who pressed the button. Discord has no
// dismissable alert, so alert only changes the log level on failure.
func (p *Platform) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	v, ok := p.interactions.LoadAndDelete(callbackID)
	if !ok {
		return &guard.PlatformError{Op: "answer_callback", Err: fmt.Errorf("interaction %s: %w", callbackID, guard.ErrNotFound)}
	}
	pi := v.(pendingInteraction)
	err := p.client.InteractionRespond(pi.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		if alert {
			p.log.Warn("discord: failed to answer interaction", zap.String("interaction_id", callbackID), zap.Error(err))
		}
		return &guard.PlatformError{Op: "answer_callback", Err: err}
	}
	return nil
}

// PruneInteractions forgets interactions older than maxAge; Discord stops accepting responses
// after a few seconds anyway.
func (p *Platform) PruneInteractions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	n := 0
	p.interactions.Range(func(k, v any) bool {
		if v.(pendingInteraction).at.Before(cutoff) {
			p.interactions.Delete(k)
			n++
		}
		return true
	})
	return n
}

// ForgetGuild drops cached role and channel lookups for the guild.
func (p *Platform) ForgetGuild(guildID int64) {
	p.roles.Delete(guildID)
	p.channels.Delete(guildID)
}

// OnRoleDelete forgets the restricted role once it is deleted so the next Restrict looks it up again.
func (p *Platform) OnRoleDelete(_ *discordgo.Session, e *discordgo.GuildRoleDelete) {
	if id, err := ParseID(e.GuildID); err == nil {
		p.roles.CompareAndDelete(id, e.RoleID)
	}
}

// OnRoleUpdate follows renames of the restricted role.
func (p *Platform) OnRoleUpdate(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	id, err := ParseID(e.GuildID)
	if err != nil {
		return
	}
	if strings.EqualFold(e.Role.Name, p.cfg.RestrictedRoleName) {
		p.roles.Store(id, e.Role.ID)
		return
	}
	p.roles.CompareAndDelete(id, e.Role.ID)
}

func (p *Platform) OnChannelDelete(_ *discordgo.Session, e *discordgo.ChannelDelete) {
	if e.Channel == nil {
		return
	}
	if id, err := ParseID(e.GuildID); err == nil {
		p.channels.CompareAndDelete(id, e.ID)
	}
}

// OnGuildUpdate drops the cached channel since the system channel may have moved.
func (p *Platform) OnGuildUpdate(_ *discordgo.Session, e *discordgo.GuildUpdate) {
	if e.Guild == nil {
		return
	}
	if id, err := ParseID(e.ID); err == nil {
		p.channels.Delete(id)
	}
}

func (p *Platform) OnGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil {
		return
	}
	if id, err := ParseID(e.ID); err == nil {
		p.ForgetGuild(id)
	}
}

func (p *Platform) restrictedRole(ctx context.Context, guildID int64) (string, error) {
	if p.cfg.RestrictedRoleID != "" {
		return p.cfg.RestrictedRoleID, nil
	}
	if v, ok := p.roles.Load(guildID); ok {
		return v.(string), nil
	}
	roles, err := p.client.GuildRoles(FormatID(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, p.cfg.RestrictedRoleName) {
			p.roles.Store(guildID, r.ID)
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("role %q not found in guild %d", p.cfg.RestrictedRoleName, guildID)
}

func (p *Platform) guardChannel(ctx context.Context, guildID int64) (string, error) {
	if p.cfg.GuardChannelID != "" {
		return p.cfg.GuardChannelID, nil
	}
	if v, ok := p.channels.Load(guildID); ok {
		return v.(string), nil
	}
	g, err := p.client.Guild(FormatID(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if g.SystemChannelID == "" {
		return "", errNoGuardChannel
	}
	p.channels.Store(guildID, g.SystemChannelID)
	return g.SystemChannelID, nil
}
