package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testcontainer "github.com/testcontainers/testcontainers-go/modules/etcd"
)

func TestEtcdStore(t *testing.T) {
	if testing.Short() {
		t.Skip("etcd container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainer.Run(ctx, "gcr.io/etcd-development/etcd:v3.5.14")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	endpoints, err := container.ClientEndpoints(ctx)
	require.NoError(t, err)

	config := Config{
		Backend:        BackendEtcd,
		Endpoints:      append([]string{"127.0.0.1:1"}, endpoints...),
		Namespace:      "kvchat-test",
		DialTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
		ConnectRetries: 3,
		Transactions:   true,
	}
	store, err := Open(ctx, config, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	testStoreContract(t, store, "")
}
