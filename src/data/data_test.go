package data

import (
	"testing"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
	"go.uber.org/zap"
)

func TestMySQLDSN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"u:p@tcp(db:3306)/guard", "u:p@tcp(db:3306)/guard?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci"},
		{"u:p@tcp(db)/guard?charset=latin1&parseTime=false", "u:p@tcp(db)/guard?charset=latin1&parseTime=false&loc=UTC"},
	}
	for _, tc := range cases {
		if got := mysqlDSN(tc.in); got != tc.want {
			t.Errorf("mysqlDSN(%q)\n got %q\nwant %q", tc.in, got, tc.want)
		}
	}
}

func TestGetDSN(t *testing.T) {
	t.Setenv("GROUPGUARD_DSN", "")
	t.Setenv("MYSQL_DSN", "")
	if _, err := GetDSN(); err == nil {
		t.Fatal("expected error without a DSN")
	}
	t.Setenv("MYSQL_DSN", "mysql-dsn")
	if dsn, _ := GetDSN(); dsn != "mysql-dsn" {
		t.Errorf("fallback: %q", dsn)
	}
	t.Setenv("GROUPGUARD_DSN", "sqlite::memory:")
	if dsn, _ := GetDSN(); dsn != "sqlite::memory:" {
		t.Errorf("preferred: %q", dsn)
	}
}

func TestSettingsFromSQLite(t *testing.T) {
	db, err := Connect("sqlite:file:datasettings?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rows := []Setting{
		{Name: "cache_ttl", Value: "45s", Active: 1},
		{Name: "log_level", Value: "debug", Active: 0},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := LoadSettings(db); err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got := GetSetting("cache_ttl"); got != "45s" {
		t.Errorf("cache_ttl: %q", got)
	}
	if got := GetSetting("log_level"); got != "" {
		t.Errorf("inactive setting loaded: %q", got)
	}
}

func TestEventPayload(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := EventPayload(guard.AuditEvent{Outcome: guard.OutcomeKeywordHit, GroupID: 1, UserID: 2, RuleID: 3, At: at})
	if p["outcome"] != "keyword_hit" || p["group_id"] != "1" || p["rule_id"] != "3" || p["time"] != int64(1700000000) {
		t.Errorf("payload: %v", p)
	}
	p = EventPayload(guard.AuditEvent{Outcome: guard.OutcomeVerified, GroupID: 1, UserID: 2, At: at})
	if _, ok := p["rule_id"]; ok {
		t.Errorf("rule_id set without a rule: %v", p)
	}
}
