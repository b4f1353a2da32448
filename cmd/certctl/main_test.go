package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMemoryStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("ENVIRONMENT", "test")
}

func TestRunRequiresCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "usage: certctl")
}

func TestRunUnknownCommand(t *testing.T) {
	useMemoryStore(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"rotate-keys"}, &out)
	assert.ErrorContains(t, err, "unknown command")
}

func TestExpiryAlertsDryRunOnEmptyStore(t *testing.T) {
	useMemoryStore(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"expiry-alerts", "--dry-run"}, &out))

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, true, report["dry_run"])
	assert.EqualValues(t, 0, report["students"])
}

func TestPurgeTokens(t *testing.T) {
	useMemoryStore(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"purge-tokens", "--older-than", "1h"}, &out))

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.EqualValues(t, 0, result["purged"])

	err := run(context.Background(), []string{"purge-tokens", "--older-than", "-1h"}, &out)
	assert.Error(t, err)
}

func TestMigrateNeedsDatabase(t *testing.T) {
	useMemoryStore(t)

	err := run(context.Background(), []string{"migrate"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestCreateAdmin(t *testing.T) {
	useMemoryStore(t)
	t.Setenv(adminPasswordEnv, "")

	var out bytes.Buffer
	err := run(context.Background(), []string{"create-admin", "--email", "root@example.edu"}, &out)
	assert.ErrorContains(t, err, "--username")

	err = run(context.Background(), []string{"create-admin", "--username", "root", "--email", "root@example.edu"}, &out)
	assert.ErrorContains(t, err, adminPasswordEnv)

	t.Setenv(adminPasswordEnv, "s3cret-pass")
	out.Reset()
	require.NoError(t, run(context.Background(), []string{"create-admin", "--username", "root", "--email", "root@example.edu"}, &out))

	var account map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &account))
	assert.Equal(t, "root", account["username"])
	assert.Equal(t, "admin", account["role"])
	assert.Equal(t, true, account["email_verified"])
	assert.Equal(t, true, account["active"])
}

func TestCreateAdminRejectsInvalidEmail(t *testing.T) {
	useMemoryStore(t)

	err := run(context.Background(), []string{
		"create-admin", "--username", "root", "--email", "nope", "--password", "s3cret-pass",
	}, &bytes.Buffer{})
	assert.Error(t, err)
}
