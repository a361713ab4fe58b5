package guard

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/groupguard/src/discord"
	"github.com/stake-plus/groupguard/src/guard/admin"
	"go.uber.org/zap"
)

const (
	commandTimeout = 15 * time.Second
	denied         = "You need the Manage Server permission to change guard settings."
)

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	m.platform.SetSelf(r.User.ID)
	m.log.Info("guard: logged in", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))

	if m.config.RegisterCommands {
		if err := discord.RegisterSlashCommands(s, m.log, m.config.GuildID, discord.CommandGuard); err != nil {
			m.log.Error("guard: failed to register slash commands", zap.Error(err))
		}
	}

	ids := make([]int64, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		if id, err := discord.ParseID(g.ID); err == nil {
			ids = append(ids, id)
		}
	}
	if runtimeCtx := m.runtime(); len(ids) > 0 && runtimeCtx != nil {
		ctx, cancel := context.WithTimeout(runtimeCtx, commandTimeout)
		defer cancel()
		if err := m.store.EnsureSettings(ctx, ids...); err != nil {
			m.log.Warn("guard: ensure settings failed", zap.Error(err))
		}
	}
}

func (m *Module) onGuildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	name := ""
	if g, err := s.State.Guild(e.GuildID); err == nil {
		name = g.Name
	}
	if ev, ok := discord.JoinEvent(e, name); ok {
		m.dispatcher.Dispatch(ev)
	}
}

func (m *Module) onMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Author != nil && !e.Author.Bot && e.GuildID != "" {
		if args, ok := discord.TextCommandArgs(e.Content); ok {
			perms, _ := s.State.UserChannelPermissions(e.Author.ID, e.ChannelID)
			if discord.IsGuardAdmin(e.Member, perms, m.config.AdminRoleID) {
				go m.textCommand(s, e, args)
				return
			}
		}
	}
	if ev, ok := discord.MessageEvent(e); ok {
		m.dispatcher.Dispatch(ev)
	}
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == discord.CommandGuard {
			go m.slashCommand(s, i)
		}
	case discordgo.InteractionMessageComponent:
		if ev, ok := discord.CallbackEvent(i); ok {
			m.platform.TrackInteraction(i.Interaction)
			m.dispatcher.Dispatch(ev)
		}
	}
}

// runCommand parses and executes an admin command and returns the reply text.
func (m *Module) runCommand(guildID string, args []string) string {
	groupID, err := discord.ParseID(guildID)
	if err != nil {
		return "This command only works inside a server."
	}
	req, err := admin.ParseArgs(groupID, args)
	if err != nil {
		return admin.ErrorText(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := m.admin.Execute(ctx, req)
	if err != nil {
		m.log.Warn("guard: admin command failed", zap.String("guild_id", guildID), zap.Stringer("action", req.Action), zap.Error(err))
		return admin.ErrorText(err)
	}
	return res.Text
}

func (m *Module) textCommand(s *discordgo.Session, e *discordgo.MessageCreate, args []string) {
	reply := m.runCommand(e.GuildID, args)
	for _, chunk := range discord.SplitMessage(reply, discord.SafeChunkLen) {
		if _, err := s.ChannelMessageSendReply(e.ChannelID, chunk, e.Reference()); err != nil {
			m.log.Warn("guard: failed to reply to command", zap.String("channel_id", e.ChannelID), zap.Error(err))
			return
		}
	}
}

func (m *Module) slashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var perms int64
	if i.Member != nil {
		perms = i.Member.Permissions
	}
	reply := denied
	if discord.IsGuardAdmin(i.Member, perms, m.config.AdminRoleID) {
		reply = m.runCommand(i.GuildID, discord.CommandArgs(i.ApplicationCommandData().Options))
	}

	chunks := discord.SplitMessage(reply, discord.SafeChunkLen)
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: chunks[0],
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		m.log.Warn("guard: failed to answer slash command", zap.Error(err))
		return
	}
	for _, chunk := range chunks[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: chunk,
			Flags:   discordgo.MessageFlagsEphemeral,
		}); err != nil {
			m.log.Warn("guard: failed to send follow-up", zap.Error(err))
			return
		}
	}
}
