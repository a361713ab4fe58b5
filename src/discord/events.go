package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/groupguard/src/guard"
)

// JoinEvent translates a member join. Joins without a user or guild are dropped.
func JoinEvent(m *discordgo.GuildMemberAdd, guildName string) (guard.MemberJoined, bool) {
	if m == nil || m.Member == nil || m.User == nil {
		return guard.MemberJoined{}, false
	}
	groupID, err := ParseID(m.GuildID)
	if err != nil {
		return guard.MemberJoined{}, false
	}
	userID, err := ParseID(m.User.ID)
	if err != nil {
		return guard.MemberJoined{}, false
	}
	name := m.Nick
	if name == "" {
		name = m.User.GlobalName
	}
	if name == "" {
		name = m.User.Username
	}
	return guard.MemberJoined{
		GroupID:     groupID,
		GroupName:   guildName,
		UserID:      userID,
		DisplayName: name,
		IsBot:       m.User.Bot,
	}, true
}

// MessageEvent translates a guild message. Direct messages are dropped.
func MessageEvent(m *discordgo.MessageCreate) (guard.MessageReceived, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.GuildID == "" {
		return guard.MessageReceived{}, false
	}
	groupID, err := ParseID(m.GuildID)
	if err != nil {
		return guard.MessageReceived{}, false
	}
	userID, err := ParseID(m.Author.ID)
	if err != nil {
		return guard.MessageReceived{}, false
	}
	channelID, _ := ParseID(m.ChannelID)
	messageID, _ := ParseID(m.ID)
	return guard.MessageReceived{
		GroupID: groupID,
		UserID:  userID,
		IsBot:   m.Author.Bot,
		Text:    m.Content,
		Message: guard.MessageRef{ChannelID: channelID, MessageID: messageID},
	}, true
}

// CallbackEvent translates a press of a verification button. Other interactions are dropped.
func CallbackEvent(i *discordgo.InteractionCreate) (guard.CallbackReceived, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return guard.CallbackReceived{}, false
	}
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, guard.CallbackPrefix) {
		return guard.CallbackReceived{}, false
	}
	if i.Member == nil || i.Member.User == nil {
		return guard.CallbackReceived{}, false
	}
	groupID, err := ParseID(i.GuildID)
	if err != nil {
		return guard.CallbackReceived{}, false
	}
	userID, err := ParseID(i.Member.User.ID)
	if err != nil {
		return guard.CallbackReceived{}, false
	}
	return guard.CallbackReceived{
		GroupID:    groupID,
		UserID:     userID,
		CallbackID: i.ID,
		Data:       data.CustomID,
	}, true
}
