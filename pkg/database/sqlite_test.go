package database

import (
	"strings"
	"testing"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN("data/smartdocs.db")

	if !strings.HasPrefix(dsn, "file:data/smartdocs.db?") {
		t.Errorf("dsn = %q, want file:data/smartdocs.db? prefix", dsn)
	}
	for _, param := range []string{
		"_journal_mode=WAL",
		"_txlock=immediate",
		"_busy_timeout=5000",
		"_foreign_keys=on",
	} {
		if !strings.Contains(dsn, param) {
			t.Errorf("dsn %q missing %s", dsn, param)
		}
	}
}
