//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/dishpatch/api/internal/domain"
	pconfig "github.com/dishpatch/api/internal/platform/config"
	pfirestore "github.com/dishpatch/api/internal/platform/firestore"
	"github.com/dishpatch/api/internal/repositories"
)

func TestTrackingRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "tracking-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewTrackingRepository(provider)
	if err != nil {
		t.Fatalf("new tracking repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.Insert(ctx, domain.OrderTracking{
		OrderID:        "ord_int_1",
		RestaurantID:   "rest_1",
		DeliveryStatus: domain.DeliveryAssigningDriver,
		Timestamps:     map[string]time.Time{"pending_at": now},
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("insert tracking: %v", err)
	}

	first := domain.DeliveryDriver{ID: "drv_A", Name: "Aya"}
	if err := repo.SetDriver(ctx, "ord_int_1", &first, now); err != nil {
		t.Fatalf("assign first driver: %v", err)
	}

	// A second assign must fail at the write even though the caller's
	// snapshot predates the first one.
	second := domain.DeliveryDriver{ID: "drv_B", Name: "Ben"}
	err = repo.SetDriver(ctx, "ord_int_1", &second, now.Add(time.Second))
	if err == nil {
		t.Fatal("expected conflict assigning a second driver")
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict error, got %T %v", err, err)
	}

	tracking, err := repo.FindByOrderID(ctx, "ord_int_1")
	if err != nil {
		t.Fatalf("find tracking: %v", err)
	}
	if tracking.Driver == nil || tracking.Driver.ID != "drv_A" {
		t.Fatalf("expected drv_A to remain assigned, got %+v", tracking.Driver)
	}

	// Explicit unassign releases the slot for a new driver.
	if err := repo.SetDriver(ctx, "ord_int_1", nil, now.Add(2*time.Second)); err != nil {
		t.Fatalf("unassign driver: %v", err)
	}
	if err := repo.SetDriver(ctx, "ord_int_1", &second, now.Add(3*time.Second)); err != nil {
		t.Fatalf("assign after unassign: %v", err)
	}

	// Identical samples from a stationary driver are appended, not merged.
	sample := domain.LocationSample{
		Lat:       31.95,
		Lng:       35.91,
		Status:    domain.DeliveryDriverOnWay,
		Timestamp: now.Add(4 * time.Second),
	}
	if err := repo.AppendLocation(ctx, "ord_int_1", sample); err != nil {
		t.Fatalf("append first sample: %v", err)
	}
	if err := repo.AppendLocation(ctx, "ord_int_1", sample); err != nil {
		t.Fatalf("append duplicate sample: %v", err)
	}

	record := domain.NotificationRecord{
		Channel:   domain.ChannelPush,
		Template:  "order_on_way",
		Sent:      false,
		Reason:    "missing push token",
		Timestamp: now.Add(4 * time.Second),
	}
	if err := repo.AppendNotifications(ctx, "ord_int_1", []domain.NotificationRecord{record}); err != nil {
		t.Fatalf("append first record: %v", err)
	}
	if err := repo.AppendNotifications(ctx, "ord_int_1", []domain.NotificationRecord{record}); err != nil {
		t.Fatalf("append duplicate record: %v", err)
	}

	tracking, err = repo.FindByOrderID(ctx, "ord_int_1")
	if err != nil {
		t.Fatalf("find tracking after appends: %v", err)
	}
	if len(tracking.LocationHistory) != 2 {
		t.Fatalf("expected 2 location samples, got %d", len(tracking.LocationHistory))
	}
	if len(tracking.Notifications) != 2 {
		t.Fatalf("expected 2 notification records, got %d", len(tracking.Notifications))
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
