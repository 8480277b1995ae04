package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/rezervator/internal/auth"
	"github.com/erazemk/rezervator/internal/availability"
	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	categories := `
categories:
  - name: tent
    fields:
      - size
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "categories.yaml"), []byte(categories), 0o644))

	cfg := `
backend: sqlite
sqlite:
  path: ` + filepath.Join(dir, "test.sqlite3") + `
categories: ` + filepath.Join(dir, "categories.yaml") + `
log:
  level: error
`
	path := filepath.Join(dir, "rezervator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite backend is up to date")
}

func TestCheckAndSnapshot(t *testing.T) {
	path := writeConfig(t)

	a, err := newApp(context.Background(), path)
	require.NoError(t, err)
	item, err := a.engine.CreateItem(context.Background(), model.ItemSpec{
		Name: "Tent 4p", Category: "tent", TotalQuantity: 3,
		City: "Torino", Region: "TO", Attributes: model.Attributes{"size": "4"},
	})
	require.NoError(t, err)
	_, err = a.engine.CreateCommitment(context.Background(), model.CommitmentSpec{
		ItemID: item.ID, Quantity: 2,
		StartDate: dates.MustParse("2030-07-01"), EndDate: dates.MustParse("2030-07-10"),
		City: "Torino", Region: "TO",
	})
	require.NoError(t, err)
	require.NoError(t, a.close(context.Background()))

	out, err := run(t, "--config", path, "check", item.ID, "--date", "2030-07-05")
	require.NoError(t, err)
	var point availability.Point
	require.NoError(t, json.Unmarshal([]byte(out), &point))
	assert.Equal(t, 2, point.Committed)
	assert.Equal(t, 1, point.Available)

	out, err = run(t, "--config", path, "check", item.ID, "--date", "2030-06-25", "--end", "2030-07-02")
	require.NoError(t, err)
	var peak availability.Peak
	require.NoError(t, json.Unmarshal([]byte(out), &peak))
	assert.Equal(t, 2, peak.PeakCommitted)
	assert.Equal(t, 1, peak.MinAvailable)

	out, err = run(t, "--config", path, "snapshot", "--date", "2030-07-11")
	require.NoError(t, err)
	var points []availability.Point
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 3, points[0].Available)
}

func TestCheckRejectsHalfLocation(t *testing.T) {
	path := writeConfig(t)

	_, err := run(t, "--config", path, "check", "1", "--city", "Torino")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "location", verr.Field)
}

func TestUnknownBackend(t *testing.T) {
	path := writeConfig(t)
	t.Setenv("REZERVATOR_BACKEND", "mongo")

	_, err := run(t, "--config", path, "migrate")
	var cerr *model.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "backend", cerr.Key)
}

func TestTokenIsSignedWithTheStoredSecret(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "--config", path, "token", "maria")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	a, err := newApp(context.Background(), path)
	require.NoError(t, err)
	defer a.close(context.Background())

	claims, err := auth.ValidateToken(a.jwtSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "maria", claims.Actor())
}
