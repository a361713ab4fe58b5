package discord

import "github.com/bwmarrin/discordgo"

// Guild permission bits that grant access to the guard commands.
const (
	permAdministrator int64 = 1 << 3
	permManageGuild   int64 = 1 << 5
)

func memberHasRole(member *discordgo.Member, roleID string) bool {
	for _, role := range member.Roles {
		if role == roleID {
			return true
		}
	}
	return false
}

// CanManage reports whether perms include Manage Server or Administrator.
func CanManage(perms int64) bool {
	return perms&(permAdministrator|permManageGuild) != 0
}

// IsGuardAdmin decides whether member may change guard settings. With adminRoleID set,
// holding that role is enough; otherwise the member needs Manage Server.
func IsGuardAdmin(member *discordgo.Member, perms int64, adminRoleID string) bool {
	if member == nil {
		return false
	}
	if adminRoleID != "" && memberHasRole(member, adminRoleID) {
		return true
	}
	return CanManage(perms)
}
