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

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"github.com/nuzumhq/fleet_backend/workflow"
)

// Regression: a command re-submitted with the same idempotency key must
// replay the original outcome (same record and request ids, no second row),
// and the email dedupe rows the notifier writes must stay invisible to the
// in-app notification queries.
func TestProposeIdempotencyKeyReplaysOriginalOutcome(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	startOperationsStack(t)
	ctx := context.Background()

	admin, staff := seedReviewPair(t, ctx)
	adminCtx := reviewerContext(ctx, admin)
	staffCtx := requesterContext(ctx, staff)

	vehicle, err := models.CreateVehicle(staffCtx, &models.NewVehicle{PlateNumber: "RPL-100"})
	if err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	input := &models.NewHandover{
		VehicleId:    vehicle.ID,
		Type:         models.HandoverTypeDelivery,
		HandoverDate: time.Now(),
		Mileage:      10000,
		DriverName:   "أحمد",
	}
	meta := &workflow.ProposeMeta{Title: "تسليم للسائق أحمد", IdempotencyKey: "replay-key-1"}

	first, err := workflow.ProposeHandover(staffCtx, input, meta)
	if err != nil {
		t.Fatalf("ProposeHandover: %v", err)
	}
	second, err := workflow.ProposeHandover(staffCtx, input, meta)
	if err != nil {
		t.Fatalf("ProposeHandover (replay): %v", err)
	}
	if first.RecordId != second.RecordId || first.RequestId != second.RequestId {
		t.Fatalf("replay returned different ids: first=%+v second=%+v", first, second)
	}

	db := config.GetDB()
	var requestCount, recordCount int64
	if err := db.Model(&models.OperationRequest{}).Where("vehicle_id = ?", vehicle.ID).Count(&requestCount).Error; err != nil {
		t.Fatalf("count requests: %v", err)
	}
	if err := db.Model(&models.HandoverRecord{}).Where("vehicle_id = ?", vehicle.ID).Count(&recordCount).Error; err != nil {
		t.Fatalf("count handovers: %v", err)
	}
	if requestCount != 1 || recordCount != 1 {
		t.Fatalf("replay must not create rows, got %d requests %d records", requestCount, recordCount)
	}

	state, err := workflow.ApproveRequest(adminCtx, first.RequestId, "")
	if err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}
	if state.Status != models.VehicleStatusInProject || state.CurrentDriver != "أحمد" {
		t.Fatalf("unexpected derived state after approval: %+v", state)
	}

	// the approval notified the requester in-app and by email; the email row
	// is a delivery dedupe marker and must not surface anywhere user-facing
	var emailRows int64
	if err := db.Model(&models.Notification{}).
		Where("recipient_id = ? AND channel = ?", staff.ID, models.ChannelEmail).
		Count(&emailRows).Error; err != nil {
		t.Fatalf("count email rows: %v", err)
	}
	if emailRows == 0 {
		t.Fatalf("expected an email dedupe row for the requester")
	}

	items, err := models.ListNotifications(staffCtx, false, 50)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected in-app notifications for the requester")
	}
	for _, n := range items {
		if n.Channel != models.ChannelInApp {
			t.Fatalf("email row leaked into the in-app list: %+v", n)
		}
	}

	unread, err := models.UnreadNotificationCount(staffCtx)
	if err != nil {
		t.Fatalf("UnreadNotificationCount: %v", err)
	}
	if unread != int64(len(items)) {
		t.Fatalf("unread badge counts email rows: badge=%d in-app=%d", unread, len(items))
	}

	if err := models.MarkAllNotificationsRead(staffCtx); err != nil {
		t.Fatalf("MarkAllNotificationsRead: %v", err)
	}
	unread, err = models.UnreadNotificationCount(staffCtx)
	if err != nil {
		t.Fatalf("UnreadNotificationCount after mark-all: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected zero unread after mark-all, got %d", unread)
	}
}

// startOperationsStack brings up throwaway redis + mysql containers, wires the
// env, connects the globals and migrates a fresh schema.
func startOperationsStack(t *testing.T) {
	t.Helper()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "nuzum_test")
	t.Setenv("ARCHIVE_DIRECT_PROCESSING", "false")
	t.Setenv("OPERATION_EVENTS_TOPIC", "")
	t.Setenv("STORAGE_PROVIDER", "none")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	workflow.SetMailer(utils.NoopMailer{})
}

func seedReviewPair(t *testing.T, ctx context.Context) (*models.User, *models.User) {
	t.Helper()
	admin, err := models.CreateUser(ctx, &models.NewUser{
		Username: "admin",
		Email:    "admin@nuzum.test",
		Name:     "مدير النظام",
		Password: "admin-test-pw",
		Role:     models.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("CreateUser admin: %v", err)
	}
	staff, err := models.CreateUser(ctx, &models.NewUser{
		Username: "staff",
		Email:    "staff@nuzum.test",
		Name:     "موظف الحركة",
		Password: "staff-test-pw",
		Role:     models.UserRoleStaff,
	})
	if err != nil {
		t.Fatalf("CreateUser staff: %v", err)
	}
	return admin, staff
}

func reviewerContext(ctx context.Context, u *models.User) context.Context {
	ctx = utils.SetUserIdInContext(ctx, u.ID)
	ctx = utils.SetUserNameInContext(ctx, u.Name)
	return utils.SetIsAdminInContext(ctx, true)
}

func requesterContext(ctx context.Context, u *models.User) context.Context {
	ctx = utils.SetUserIdInContext(ctx, u.ID)
	return utils.SetUserNameInContext(ctx, u.Name)
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("nuzum-test-redis-%d", time.Now().UnixNano())
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
	name := fmt.Sprintf("nuzum-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=nuzum_test",
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
