package dynamock

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewLocalDynamoDB(t *testing.T) {
	local := NewLocalDynamoDB(8123)

	if local.Client == nil {
		t.Fatal("expected client to be created")
	}
	if local.Port != 8123 {
		t.Errorf("expected port 8123, got %d", local.Port)
	}
	if local.Endpoint != "http://localhost:8123" {
		t.Errorf("unexpected endpoint %s", local.Endpoint)
	}

	if def := NewDefaultLocalDynamoDB(); def.Port != DefaultLocalPort {
		t.Errorf("expected default port %d, got %d", DefaultLocalPort, def.Port)
	}
}

func TestLocalDynamoDB_IsAvailable(t *testing.T) {
	// port 1 is reserved and never serves DynamoDB Local
	local := NewLocalDynamoDB(1)
	if local.IsAvailable(context.Background()) {
		t.Skip("unexpected listener on port 1")
	}

	err := local.WaitForAvailable(context.Background(), 50*time.Millisecond)
	if err == nil {
		t.Error("expected WaitForAvailable to time out")
	}
}

func TestNewTestTable(t *testing.T) {
	name := NewTestTable("test-TestThing/sub case")

	if !strings.HasPrefix(name, "test-TestThing-sub-case-") {
		t.Errorf("unexpected table name %s", name)
	}
	for _, r := range name {
		valid := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-'
		if !valid {
			t.Errorf("invalid rune %q in table name %s", r, name)
		}
	}
}
