package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/models"
)

// Full-stack regression: the writer must upsert by order number, re-uploads
// must never clobber reconciliation results, and the engine's merge must be
// idempotent at the row level.
func TestCanonicalWriter_UpsertAndMergeLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "sweeping_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()

	batch, err := models.FindOrCreateUploadBatch(ctx, db, "ACME", "TIKTOK", "28", "4", "ACME-TIKTOK-28-4.csv")
	if err != nil {
		t.Fatalf("FindOrCreateUploadBatch: %v", err)
	}

	// Same tokens must resolve to the same batch row.
	again, err := models.FindOrCreateUploadBatch(ctx, db, "ACME", "TIKTOK", "28", "4", "ACME-TIKTOK-28-4.csv")
	if err != nil {
		t.Fatalf("FindOrCreateUploadBatch (again): %v", err)
	}
	if again.ID != batch.ID {
		t.Fatalf("expected same batch id, got %d and %d", batch.ID, again.ID)
	}

	uploadedAt := time.Now()
	orders := []models.CanonicalOrder{
		{OrderNumber: "ORD1", Marketplace: "TIKTOK", Brand: "ACME", Batch: "4", OrderStatus: "Shipped", ItemId: "X,Y", UploadDate: uploadedAt, InterfaceStatus: models.InterfaceStatusNotYetInterface},
		{OrderNumber: "ORD2", Marketplace: "TIKTOK", Brand: "ACME", Batch: "4", OrderStatus: "Packed", ItemId: "Z", UploadDate: uploadedAt, InterfaceStatus: models.InterfaceStatusNotYetInterface},
	}
	counts, err := models.SaveAggregatedOrders(ctx, batch, orders)
	if err != nil {
		t.Fatalf("SaveAggregatedOrders: %v", err)
	}
	if counts.Inserted != 2 || counts.Updated != 0 {
		t.Fatalf("expected 2 inserts, got %+v", counts)
	}

	// The engine marks ORD1 as interfaced.
	updated, err := models.MarkOrderInterfaced(ctx, db, "ORD1", models.FlexoResult{
		OrderNumberFlexo: "FLX-1",
		OrderStatusFlexo: "Completed",
		ItemIdFlexo:      "Y,X",
	})
	if err != nil {
		t.Fatalf("MarkOrderInterfaced: %v", err)
	}
	if !updated {
		t.Fatal("expected first merge to report a write")
	}

	// A second merge with identical data is a no-op.
	updated, err = models.MarkOrderInterfaced(ctx, db, "ORD1", models.FlexoResult{
		OrderNumberFlexo: "FLX-1",
		OrderStatusFlexo: "Completed",
		ItemIdFlexo:      "Y,X",
	})
	if err != nil {
		t.Fatalf("MarkOrderInterfaced (repeat): %v", err)
	}
	if updated {
		t.Fatal("expected idempotent merge to report no write")
	}

	// ORD1 is interfaced now, so only ORD2 remains unresolved.
	unresolved, err := models.UnresolvedOrderNumbers(ctx, "ACME", "4", false)
	if err != nil {
		t.Fatalf("UnresolvedOrderNumbers: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0] != "ORD2" {
		t.Fatalf("expected only ORD2 unresolved, got %v", unresolved)
	}

	// Re-uploading the batch updates ingestion fields but must not touch
	// interface status or Flexo columns.
	reupload := []models.CanonicalOrder{
		{OrderNumber: "ORD1", Marketplace: "TIKTOK", Brand: "ACME", Batch: "4", OrderStatus: "Delivered", ItemId: "X,Y", UploadDate: time.Now(), InterfaceStatus: models.InterfaceStatusNotYetInterface},
	}
	counts, err = models.SaveAggregatedOrders(ctx, batch, reupload)
	if err != nil {
		t.Fatalf("SaveAggregatedOrders (re-upload): %v", err)
	}
	if counts.Inserted != 0 || counts.Updated != 1 {
		t.Fatalf("expected 1 update on re-upload, got %+v", counts)
	}

	var ord1 models.CanonicalOrder
	if err := db.WithContext(ctx).Where("order_number = ?", "ORD1").Take(&ord1).Error; err != nil {
		t.Fatalf("load ORD1: %v", err)
	}
	if ord1.OrderStatus != "Delivered" {
		t.Fatalf("re-upload should refresh order status, got %q", ord1.OrderStatus)
	}
	if ord1.InterfaceStatus != models.InterfaceStatusInterface {
		t.Fatalf("re-upload must not revert interface status, got %q", ord1.InterfaceStatus)
	}
	if ord1.OrderNumberFlexo != "FLX-1" || ord1.ItemIdFlexo != "Y,X" {
		t.Fatalf("re-upload must not touch flexo columns, got %+v", ord1)
	}
	if ord1.Comparison() != models.ComparisonMatch {
		t.Fatalf("expected Match for reordered SKU lists, got %q", ord1.Comparison())
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sweeping-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sweeping-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=sweeping_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
