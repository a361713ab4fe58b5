package discord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const CommandGuard = "guard"

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	CommandGuard: {
		Name:        CommandGuard,
		Description: "Configure join verification and the keyword filter",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("status", "Show the guard settings for this server"),
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "verify",
				Description: "Join verification",
				Options: []*discordgo.ApplicationCommandOption{
					subcommand("on", "Challenge new members"),
					subcommand("off", "Stop challenging new members"),
					subcommand("timeout", "Seconds a new member has to verify",
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "seconds",
							Description: "Between 15 and 3600",
							Required:    true,
						}),
					subcommand("message", "Challenge text, use - to restore the default",
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "text",
							Description: "Placeholders: {user} {chat} {timeout}",
							Required:    true,
						}),
					subcommand("kick", "Remove members who do not verify in time",
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "enabled",
							Description: "Remove (true) or keep restricted (false)",
							Required:    true,
						}),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "keyword",
				Description: "Keyword filter",
				Options: []*discordgo.ApplicationCommandOption{
					subcommand("list", "List keyword rules"),
					subcommand("on", "Enable the keyword filter"),
					subcommand("off", "Disable the keyword filter"),
					subcommand("add", "Add a keyword rule",
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "pattern",
							Description: "Text or regular expression to block",
							Required:    true,
						},
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "regex",
							Description: "Treat the pattern as a regular expression",
						},
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "case",
							Description: "Match case exactly",
						}),
					subcommand("remove", "Remove a keyword rule",
						&discordgo.ApplicationCommandOption{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "id",
							Description: "Rule id from the list",
							Required:    true,
						}),
					subcommand("clear", "Remove every keyword rule"),
				},
			},
		},
	},
}

var defaultCommandOrder = []string{CommandGuard}

// RegisterSlashCommands registers the requested slash commands for a guild, or globally when
// guildID is empty. When no command names are provided, all known commands are registered.
func RegisterSlashCommands(s *discordgo.Session, log *zap.Logger, guildID string, names ...string) error {
	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			log.Warn("discord: unknown slash command", zap.String("command", name))
			continue
		}

		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition)
		if err != nil {
			if isDuplicateCommandError(err) {
				log.Debug("discord: slash command already registered", zap.String("command", name))
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			log.Error("discord: failed to register command", zap.String("command", name), zap.Error(err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}

	return nil
}

// DeleteSlashCommands removes all registered slash commands for a guild.
func DeleteSlashCommands(s *discordgo.Session, guildID string) error {
	commands, err := s.ApplicationCommands(s.State.User.ID, guildID)
	if err != nil {
		return err
	}

	for _, cmd := range commands {
		if err := s.ApplicationCommandDelete(s.State.User.ID, guildID, cmd.ID); err != nil {
			return err
		}
	}

	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			msg := strings.ToLower(restErr.Message.Message)
			if strings.Contains(msg, "already exists") {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}

// CommandArgs flattens a /guard invocation into the words of the text command, so both
// surfaces share one parser. Free-text options stay a single word.
func CommandArgs(options []*discordgo.ApplicationCommandInteractionDataOption) []string {
	var args []string
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommandGroup, discordgo.ApplicationCommandOptionSubCommand:
			args = append(args, opt.Name)
			args = append(args, CommandArgs(opt.Options)...)
		case discordgo.ApplicationCommandOptionString:
			args = append(args, opt.StringValue())
		case discordgo.ApplicationCommandOptionInteger:
			args = append(args, strconv.FormatInt(opt.IntValue(), 10))
		case discordgo.ApplicationCommandOptionBoolean:
			switch {
			case opt.Name == "enabled" && opt.BoolValue():
				args = append(args, "on")
			case opt.Name == "enabled":
				args = append(args, "off")
			case opt.BoolValue():
				args = append(args, "--"+opt.Name)
			}
		}
	}
	return args
}

var textPrefixes = []string{"!guard", "/guard"}

// TextCommandArgs recognises "!guard ..." typed as a plain message.
func TextCommandArgs(content string) ([]string, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return nil, false
	}
	for _, p := range textPrefixes {
		if strings.EqualFold(fields[0], p) {
			return fields[1:], true
		}
	}
	return nil, false
}
