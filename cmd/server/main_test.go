package main

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreSQLite(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("database.driver", "sqlite")
	viper.Set("database.sqlite_dsn", "file:server_open_store?mode=memory&cache=shared")

	store, closeStore := openStore(context.Background())
	require.NotNil(t, store)
	defer closeStore()

	ids, err := store.ListCampaignIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
