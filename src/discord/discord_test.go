package discord

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/admin"
)

type fakeClient struct {
	mu         sync.Mutex
	roleCalls  int
	guildCalls int
	added      []string
	removed    []string
	banned     []string
	unbanned   []string
	sent       []*discordgo.MessageSend
	deleted    []string
	responses  []*discordgo.InteractionResponse
	sendErr    error
}

func (f *fakeClient) GuildMemberRoleAdd(g, u, r string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, g+"/"+u+"/"+r)
	return nil
}

func (f *fakeClient) GuildMemberRoleRemove(g, u, r string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, g+"/"+u+"/"+r)
	return nil
}

func (f *fakeClient) GuildBanCreateWithReason(g, u, _ string, _ int, _ ...discordgo.RequestOption) error {
	f.banned = append(f.banned, g+"/"+u)
	return nil
}

func (f *fakeClient) GuildBanDelete(g, u string, _ ...discordgo.RequestOption) error {
	f.unbanned = append(f.unbanned, g+"/"+u)
	return nil
}

func (f *fakeClient) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.roleCalls++
	return []*discordgo.Role{{ID: "10", Name: "Member"}, {ID: "11", Name: "unverified"}}, nil
}

func (f *fakeClient) Guild(id string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.guildCalls++
	return &discordgo.Guild{ID: id, SystemChannelID: "500"}, nil
}

func (f *fakeClient) ChannelMessageSendComplex(ch string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "900", ChannelID: ch}, nil
}

func (f *fakeClient) ChannelMessageDelete(ch, msg string, _ ...discordgo.RequestOption) error {
	f.deleted = append(f.deleted, ch+"/"+msg)
	return nil
}

func (f *fakeClient) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return nil
}

func TestRestrictLooksUpRoleOnce(t *testing.T) {
	fc := &fakeClient{}
	p := NewPlatform(fc, PlatformConfig{}, nil)
	ctx := context.Background()
	if err := p.Restrict(ctx, 1, 2); err != nil {
		t.Fatalf("Restrict: %v", err)
	}
	if err := p.Unrestrict(ctx, 1, 2); err != nil {
		t.Fatalf("Unrestrict: %v", err)
	}
	if fc.roleCalls != 1 {
		t.Errorf("role lookups: %d", fc.roleCalls)
	}
	if fc.added[0] != "1/2/11" || fc.removed[0] != "1/2/11" {
		t.Errorf("role changes: %v %v", fc.added, fc.removed)
	}
}

func TestRoleAndChannelEventsInvalidateLookups(t *testing.T) {
	fc := &fakeClient{}
	p := NewPlatform(fc, PlatformConfig{}, nil)
	ctx := context.Background()
	restrict := func() {
		t.Helper()
		if err := p.Restrict(ctx, 1, 2); err != nil {
			t.Fatalf("Restrict: %v", err)
		}
	}

	restrict()
	p.OnRoleDelete(nil, &discordgo.GuildRoleDelete{GuildID: "1", RoleID: "10"})
	restrict()
	if fc.roleCalls != 1 {
		t.Fatalf("unrelated role delete dropped the cache: lookups=%d", fc.roleCalls)
	}
	p.OnRoleDelete(nil, &discordgo.GuildRoleDelete{GuildID: "1", RoleID: "11"})
	restrict()
	if fc.roleCalls != 2 {
		t.Fatalf("deleted role still cached: lookups=%d", fc.roleCalls)
	}

	p.OnRoleUpdate(nil, &discordgo.GuildRoleUpdate{GuildRole: &discordgo.GuildRole{GuildID: "1", Role: &discordgo.Role{ID: "11", Name: "verified"}}})
	restrict()
	if fc.roleCalls != 3 {
		t.Fatalf("renamed role still cached: lookups=%d", fc.roleCalls)
	}
	p.OnRoleUpdate(nil, &discordgo.GuildRoleUpdate{GuildRole: &discordgo.GuildRole{GuildID: "1", Role: &discordgo.Role{ID: "12", Name: "Unverified"}}})
	restrict()
	if fc.roleCalls != 3 || fc.added[len(fc.added)-1] != "1/2/12" {
		t.Fatalf("role rename not followed: lookups=%d added=%v", fc.roleCalls, fc.added)
	}

	send := func() {
		t.Helper()
		if _, err := p.SendMessage(ctx, 1, "hi", ""); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	send()
	p.OnChannelDelete(nil, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "500", GuildID: "1"}})
	send()
	p.OnGuildUpdate(nil, &discordgo.GuildUpdate{Guild: &discordgo.Guild{ID: "1"}})
	send()
	if fc.guildCalls != 3 {
		t.Fatalf("channel lookups: %d", fc.guildCalls)
	}

	p.OnGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "1"}})
	restrict()
	send()
	if fc.roleCalls != 4 || fc.guildCalls != 4 {
		t.Fatalf("guild delete kept lookups: roles=%d guild=%d", fc.roleCalls, fc.guildCalls)
	}
}

func TestRestrictMissingRole(t *testing.T) {
	p := NewPlatform(&fakeClient{}, PlatformConfig{RestrictedRoleName: "Quarantine"}, nil)
	err := p.Restrict(context.Background(), 1, 2)
	if !errors.Is(err, guard.ErrPlatformUnavailable) {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestSendMessageWithButton(t *testing.T) {
	fc := &fakeClient{}
	p := NewPlatform(fc, PlatformConfig{}, nil)
	ref, err := p.SendMessage(context.Background(), 1, "hello", "abc")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if *ref != (guard.MessageRef{ChannelID: 500, MessageID: 900}) {
		t.Errorf("ref: %+v", ref)
	}
	if _, err := p.SendMessage(context.Background(), 1, "again", ""); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if fc.guildCalls != 1 {
		t.Errorf("guild lookups: %d", fc.guildCalls)
	}
	row := fc.sent[0].Components[0].(discordgo.ActionsRow)
	if btn := row.Components[0].(discordgo.Button); btn.CustomID != "guard:verify:abc" {
		t.Errorf("button: %+v", btn)
	}
	if len(fc.sent[1].Components) != 0 {
		t.Errorf("plain message carries components")
	}

	fc.sendErr = errors.New("boom")
	if _, err := p.SendMessage(context.Background(), 1, "x", ""); !errors.Is(err, guard.ErrPlatformUnavailable) {
		t.Errorf("send error: %v", err)
	}
}

func TestDeleteAndBan(t *testing.T) {
	fc := &fakeClient{}
	p := NewPlatform(fc, PlatformConfig{GuardChannelID: "77"}, nil)
	ctx := context.Background()
	if err := p.DeleteMessage(ctx, 1, guard.MessageRef{MessageID: 5}); err != nil {
		t.Fatal(err)
	}
	if err := p.DeleteMessage(ctx, 1, guard.MessageRef{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Ban(ctx, 1, 2, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := p.Unban(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fc.deleted, []string{"77/5"}) {
		t.Errorf("deleted: %v", fc.deleted)
	}
	if fc.banned[0] != "1/2" || fc.unbanned[0] != "1/2" {
		t.Errorf("ban: %v %v", fc.banned, fc.unbanned)
	}
}

func TestAnswerCallback(t *testing.T) {
	fc := &fakeClient{}
	p := NewPlatform(fc, PlatformConfig{}, nil)
	p.TrackInteraction(&discordgo.Interaction{ID: "i1"})
	p.TrackInteraction(&discordgo.Interaction{ID: "i2"})

	if err := p.AnswerCallback(context.Background(), "i1", "ok", false); err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	if got := fc.responses[0].Data; got.Content != "ok" || got.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("response: %+v", got)
	}
	if err := p.AnswerCallback(context.Background(), "i1", "again", false); !errors.Is(err, guard.ErrNotFound) {
		t.Errorf("second answer: %v", err)
	}
	if n := p.PruneInteractions(-time.Second); n != 1 {
		t.Errorf("pruned %d", n)
	}
}

func TestSelfID(t *testing.T) {
	p := NewPlatform(&fakeClient{}, PlatformConfig{}, nil)
	p.SetSelf("123")
	p.SetSelf("not-a-number")
	if p.SelfID() != 123 || p.Mention(5) != "<@5>" {
		t.Errorf("self=%d mention=%s", p.SelfID(), p.Mention(5))
	}
}

func TestJoinEvent(t *testing.T) {
	m := &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "1",
		User:    &discordgo.User{ID: "2", Username: "alice", GlobalName: "Alice"},
	}}
	ev, ok := JoinEvent(m, "Guild")
	if !ok || ev != (guard.MemberJoined{GroupID: 1, GroupName: "Guild", UserID: 2, DisplayName: "Alice"}) {
		t.Fatalf("JoinEvent: %+v %v", ev, ok)
	}
	if _, ok := JoinEvent(&discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "1"}}, ""); ok {
		t.Error("join without user accepted")
	}
}

func TestMessageEvent(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "9", ChannelID: "8", GuildID: "1", Content: "hi", Author: &discordgo.User{ID: "2", Bot: true},
	}}
	ev, ok := MessageEvent(m)
	want := guard.MessageReceived{GroupID: 1, UserID: 2, IsBot: true, Text: "hi", Message: guard.MessageRef{ChannelID: 8, MessageID: 9}}
	if !ok || ev != want {
		t.Fatalf("MessageEvent: %+v %v", ev, ok)
	}
	m.GuildID = ""
	if _, ok := MessageEvent(m); ok {
		t.Error("direct message accepted")
	}
}

func TestCallbackEvent(t *testing.T) {
	mk := func(customID string) *discordgo.InteractionCreate {
		return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			ID:      "i1",
			Type:    discordgo.InteractionMessageComponent,
			GuildID: "1",
			Member:  &discordgo.Member{User: &discordgo.User{ID: "2"}},
			Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
		}}
	}
	ev, ok := CallbackEvent(mk("guard:verify:tok"))
	if !ok || ev != (guard.CallbackReceived{GroupID: 1, UserID: 2, CallbackID: "i1", Data: "guard:verify:tok"}) {
		t.Fatalf("CallbackEvent: %+v %v", ev, ok)
	}
	if _, ok := CallbackEvent(mk("other:button")); ok {
		t.Error("foreign button accepted")
	}
}

func TestCommandArgs(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{{
		Type: discordgo.ApplicationCommandOptionSubCommandGroup,
		Name: "keyword",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Name: "add",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "pattern", Value: "buy now"},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "regex", Value: true},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "case", Value: false},
			},
		}},
	}}
	args := CommandArgs(opts)
	if !reflect.DeepEqual(args, []string{"keyword", "add", "buy now", "--regex"}) {
		t.Fatalf("args: %q", args)
	}
	req, err := admin.ParseArgs(1, args)
	if err != nil || req.Pattern != "buy now" || !req.IsRegex || req.CaseSensitive {
		t.Fatalf("ParseArgs: %+v %v", req, err)
	}

	kick := []*discordgo.ApplicationCommandInteractionDataOption{{
		Type: discordgo.ApplicationCommandOptionSubCommandGroup,
		Name: "verify",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Name:    "kick",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Value: false}},
		}},
	}}
	if got := CommandArgs(kick); !reflect.DeepEqual(got, []string{"verify", "kick", "off"}) {
		t.Errorf("kick args: %q", got)
	}

	timeout := []*discordgo.ApplicationCommandInteractionDataOption{{
		Type: discordgo.ApplicationCommandOptionSubCommandGroup,
		Name: "verify",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Name:    "timeout",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{Type: discordgo.ApplicationCommandOptionInteger, Name: "seconds", Value: float64(120)}},
		}},
	}}
	if got := CommandArgs(timeout); !reflect.DeepEqual(got, []string{"verify", "timeout", "120"}) {
		t.Errorf("timeout args: %q", got)
	}
}

func TestTextCommandArgs(t *testing.T) {
	args, ok := TextCommandArgs("!GUARD keyword add spam")
	if !ok || !reflect.DeepEqual(args, []string{"keyword", "add", "spam"}) {
		t.Errorf("got %q %v", args, ok)
	}
	if _, ok := TextCommandArgs("guard status"); ok {
		t.Error("unprefixed text accepted")
	}
	if _, ok := TextCommandArgs("  "); ok {
		t.Error("blank text accepted")
	}
}

func TestIsGuardAdmin(t *testing.T) {
	m := &discordgo.Member{Roles: []string{"5"}}
	cases := []struct {
		perms int64
		role  string
		want  bool
	}{
		{0, "", false},
		{permManageGuild, "", true},
		{permAdministrator, "", true},
		{0, "5", true},
		{0, "6", false},
	}
	for _, tc := range cases {
		if got := IsGuardAdmin(m, tc.perms, tc.role); got != tc.want {
			t.Errorf("IsGuardAdmin(%d, %q) = %v", tc.perms, tc.role, got)
		}
	}
	if IsGuardAdmin(nil, permAdministrator, "") {
		t.Error("nil member is admin")
	}
}

func TestParseID(t *testing.T) {
	if _, err := ParseID("abc"); err == nil {
		t.Error("ParseID accepted text")
	}
	if id, err := ParseID("1234567890123456789"); err != nil || FormatID(id) != "1234567890123456789" {
		t.Errorf("round trip: %d %v", id, err)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := SplitMessage("short", 10); !reflect.DeepEqual(got, []string{"short"}) {
		t.Errorf("short: %q", got)
	}
	got := SplitMessage("aaaa\nbbbb\ncc", 9)
	if !reflect.DeepEqual(got, []string{"aaaa\nbbbb", "cc"}) {
		t.Errorf("lines: %q", got)
	}
	got = SplitMessage("abcdefghij\nk", 4)
	if !reflect.DeepEqual(got, []string{"abcd", "efgh", "ij\nk"}) {
		t.Errorf("long line: %q", got)
	}
}
