package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"foxylend/config"
	"foxylend/crypto"
	"foxylend/native/lending"
	daemoncfg "foxylend/services/lendingd/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, dataDir string) daemoncfg.Config {
	t.Helper()
	genesisPath := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, config.Write(genesisPath, config.DefaultGenesis()))
	return daemoncfg.Config{
		Environment: "dev",
		DataDir:     dataDir,
		GenesisPath: genesisPath,
		Auth:        daemoncfg.AuthConfig{HMACSecret: "secret"},
		Outbox: daemoncfg.OutboxConfig{
			Driver:      daemoncfg.DriverSQLite,
			DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			BatchSize:   10,
			MaxAttempts: 3,
		},
	}
}

func TestBootstrapWiresEngineAndOutbox(t *testing.T) {
	cfg := testConfig(t, "")
	a, err := bootstrap(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	params, err := a.engine.Params()
	require.NoError(t, err)
	genesis := config.DefaultGenesis()
	require.Equal(t, genesis.Admin, params.Admin.String())

	collections, err := a.engine.Collections(lending.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	require.NotEmpty(t, collections)
	collection := collections[0]

	lender := crypto.AddressFromSeed("lendingd/lender")
	amount := uint256.NewInt(1)
	res, err := a.engine.Lend(lending.Env{
		Caller: lender,
		Now:    1_700_000_000,
		Funds:  []lending.Coin{{Denom: params.Denom, Amount: amount}},
	}, amount, collection.ID)
	require.NoError(t, err)

	_, err = a.engine.CancelOffer(lending.Env{Caller: lender, Now: 1_700_000_001}, res.OfferID)
	require.NoError(t, err)

	done, err := a.worker.RunOnce(context.Background(), cfg.Outbox.BatchSize)
	require.NoError(t, err)
	require.Equal(t, 1, done)
}

func TestBootstrapKeepsStateAcrossRestarts(t *testing.T) {
	dataDir := t.TempDir()
	cfg := testConfig(t, dataDir)
	a, err := bootstrap(cfg, quietLogger())
	require.NoError(t, err)
	admin, err := a.engine.Params()
	require.NoError(t, err)
	next := crypto.AddressFromSeed("lendingd/next-admin")
	_, err = a.engine.UpdateAdmin(lending.Env{Caller: admin.Admin, Now: 1}, next)
	require.NoError(t, err)
	a.Close()

	// A second start must not re-apply genesis over the persisted state.
	cfg.Outbox.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	b, err := bootstrap(cfg, quietLogger())
	require.NoError(t, err)
	defer b.Close()
	params, err := b.engine.Params()
	require.NoError(t, err)
	require.True(t, params.Admin.Equal(next))
}

func TestOpenOutboxRejectsUnknownDriver(t *testing.T) {
	_, err := openOutbox(daemoncfg.OutboxConfig{Driver: "mongo"})
	require.Error(t, err)
}
