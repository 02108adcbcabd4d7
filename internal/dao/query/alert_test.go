package query

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pricewatch/internal/dao"
)

// containsAll 期望 SQL 写成以 " && " 分隔的片段，实际 SQL 需要包含全部片段
var containsAll = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	for _, frag := range strings.Split(expected, " && ") {
		if !strings.Contains(actual, frag) {
			return fmt.Errorf("sql %q does not contain %q", actual, frag)
		}
	}
	return nil
})

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(containsAll))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	return db, mock
}

var alertColumns = []string{"id", "user_id", "symbol", "target_price", "type", "duration_type", "is_active", "is_threshold_passed", "trigger_count"}

func TestFindUsesKeysetAndSkipsDeleted(t *testing.T) {
	db, mock := newMockDB(t)
	d := NewAlertDAO(db)

	mock.ExpectQuery("SELECT * FROM `alerts` && symbol = ? && id > ? && `deleted_at` = ? && ORDER BY id ASC && LIMIT").
		WillReturnRows(sqlmock.NewRows(alertColumns).
			AddRow("b", "u1", "BTCUSDT", 50000.0, "ABOVE", "ONCE", true, false, 0).
			AddRow("c", "u1", "BTCUSDT", 51000.0, "ABOVE", "ONCE", true, false, 0))

	active, passed := true, false
	alerts, err := d.Find(context.Background(), dao.AlertFilter{
		Symbol: "BTCUSDT", IsActive: &active, IsThresholdPassed: &passed, AfterID: "a",
	}, dao.SortIDAsc, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 || alerts[0].ID != "b" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTriggerIfEligibleIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	d := NewAlertDAO(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `alerts` SET && trigger_count + ? && is_active = ? AND is_threshold_passed = ? && `deleted_at` = ?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT * FROM `alerts` && id = ? && `deleted_at` = ?").
		WillReturnRows(sqlmock.NewRows(alertColumns).
			AddRow("a1", "u1", "BTCUSDT", 50000.0, "ABOVE", "ONCE", false, true, 1))
	mock.ExpectCommit()

	got, err := d.TriggerIfEligible(context.Background(), "a1", dao.TriggerPatch{Price: 50500, At: time.Now(), Deactivate: true})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.TriggerCount != 1 || !got.IsThresholdPassed {
		t.Fatalf("unexpected trigger result %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTriggerIfEligibleLostRace(t *testing.T) {
	db, mock := newMockDB(t)
	d := NewAlertDAO(db)

	// 条件不满足时不读回记录
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `alerts` SET && is_active = ? AND is_threshold_passed = ?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	got, err := d.TriggerIfEligible(context.Background(), "a1", dao.TriggerPatch{Price: 50500, At: time.Now()})
	if err != nil || got != nil {
		t.Fatalf("lost race should return nil, nil; got %+v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateIfNotTriggeredSkipsDeleted(t *testing.T) {
	db, mock := newMockDB(t)
	d := NewAlertDAO(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `alerts` SET && `target_price`=? && is_threshold_passed = ? && `deleted_at` = ?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	price := 42.0
	got, err := d.UpdateIfNotTriggered(context.Background(), "a1", dao.AlertPatch{TargetPrice: &price})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteMarksRowDeleted(t *testing.T) {
	db, mock := newMockDB(t)
	d := NewAlertDAO(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT * FROM `alerts` && id = ? && `deleted_at` = ? && FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(alertColumns).
			AddRow("a1", "u1", "BTCUSDT", 50000.0, "ABOVE", "ONCE", true, false, 0))
	mock.ExpectExec("UPDATE `alerts` SET `deleted_at`=? && id = ?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := d.Delete(context.Background(), "a1")
	if err != nil || got == nil || got.ID != "a1" {
		t.Fatalf("unexpected delete result %+v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
