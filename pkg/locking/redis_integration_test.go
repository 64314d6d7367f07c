//go:build integration

package locking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisLockManager(t *testing.T) {
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skip: cannot start redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	m, err := NewRedisLockManagerFromURL(fmt.Sprintf("redis://%s/0", endpoint))
	if err != nil {
		t.Fatal(err)
	}
	m.pollInterval = 5 * time.Millisecond
	t.Cleanup(func() { _ = m.Close() })

	exerciseLockManager(t, m)
}
