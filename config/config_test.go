package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadJSONThenDefaultsThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"app": {"AppPort": "9090", "JWTSecret": "from-file", "AdminEmails": ["Boss@Corp.test"]},
		"redis": {"RedisPort": 6380},
		"incentive": {"PointLimit": 20, "WeeklyDay": "Saturday", "SchedulerDisabled": true}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		t.Fatalf("load: %v", err)
	}
	applyDefaults(&c)

	t.Setenv("POINT_LIMIT", "25")
	t.Setenv("TOKEN_PREFIX", "HX")
	applyEnvOverrides(&c)

	if c.AppPort != "9090" || c.JWTSecret != "from-file" || c.RedisPort != 6380 {
		t.Fatalf("file values lost: %+v", c)
	}
	if c.JWTExpiresHours != 24 || c.DBName != "incentive" {
		t.Fatalf("defaults not applied: %+v", c)
	}
	ic := c.Incentive
	if ic.PointLimit != 25 || ic.TokenPrefix != "HX" {
		t.Fatalf("env overrides not applied: %+v", ic)
	}
	if ic.WeeklyDay != "Saturday" || ic.WeeklyAt != "23:00" || !ic.SchedulerDisabled {
		t.Fatalf("incentive config: %+v", ic)
	}
	if ic.MonthlyTokenQuota != 3 || ic.InactivityDays != 3 || ic.InactivityFloorMinutes != 10 || ic.CorrectionWindowDays != 3 {
		t.Fatalf("incentive defaults: %+v", ic)
	}
	if !c.IsAdminEmail("boss@corp.test") || c.IsAdminEmail("worker@corp.test") {
		t.Fatal("admin email match")
	}
}

func TestLoadJSONMissingFileIsIgnored(t *testing.T) {
	var c AppConfig
	if err := loadJSONConfig(filepath.Join(t.TempDir(), "absent.json"), &c); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestSetAppliesDefaults(t *testing.T) {
	Set(AppConfig{JWTSecret: "x"})
	got := Get()
	if got.JWTSecret != "x" || got.AppPort != "8080" || got.Incentive.PointLimit != 15 {
		t.Fatalf("Set/Get: %+v", got)
	}
}

func TestLoadJSONRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"incentive": {"PointLimt": 20}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	var c AppConfig
	if err := loadJSONConfig(path, &c); err == nil {
		t.Fatal("misspelled key accepted")
	}
}

func TestMySQLDSNUsesIncentiveTimezone(t *testing.T) {
	cfg := AppConfig{DBUser: "app", DBPassword: "pw", DBHost: "db", DBPort: "3306", DBName: "incentive"}
	cfg.Incentive.Timezone = "Asia/Shanghai"
	want := "app:pw@tcp(db:3306)/incentive?charset=utf8mb4&parseTime=True&loc=Asia%2FShanghai"
	if got := mysqlDSN(cfg); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}

	cfg.Incentive.Timezone = ""
	if got := mysqlDSN(cfg); !strings.HasSuffix(got, "&loc=Local") {
		t.Fatalf("default dsn = %q", got)
	}
}
