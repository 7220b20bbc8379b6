package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"order-pipeline/config"
	"order-pipeline/internal/broker"
	"order-pipeline/internal/domain"
	"order-pipeline/internal/models"
	"order-pipeline/internal/store"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

var requiredColumns = []string{
	"external_order_id",
	"order_placed_at",
	"currency",
	"customer_id",
	"customer_email",
	"customer_name",
	"product_sku",
	"product_name",
	"unit_price_cents",
	"qty",
}

type row struct {
	line            int
	externalOrderID string
	placedAt        time.Time
	currency        string
	customerExtID   string
	customerEmail   string
	customerName    string
	sku             string
	productName     string
	unitPriceCents  int64
	qty             int
}

// importer streams CSV rows into the store and remembers which orders it
// touched so the finalize pass runs once per order.
type importer struct {
	txr          domain.TxRunner
	repo         domain.Repo
	scheduler    domain.TaskScheduler
	defaultStock int
	logger       *zap.Logger

	resetThisRun map[int64]bool
}

func main() {
	flag.Parse()
	path := flag.Arg(0)
	if path == "" {
		log.Fatal("usage: importer <orders.csv>")
	}

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	scheduler := broker.NewScheduler(cfg.BrokerList(), broker.Topics{
		OrderTasks:        cfg.Kafka.TopicOrderTasks,
		RefundTasks:       cfg.Kafka.TopicRefundTasks,
		NotificationTasks: cfg.Kafka.TopicNotificationTasks,
		DeadLetter:        cfg.Kafka.TopicDeadLetter,
	})
	defer scheduler.Close()

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	imp := &importer{
		txr:          db,
		repo:         db,
		scheduler:    scheduler,
		defaultStock: cfg.Business.DefaultProductStock,
		logger:       logger,
		resetThisRun: make(map[int64]bool),
	}

	ctx := context.Background()
	imported, skipped, err := imp.run(ctx, f)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("Import complete. Imported %d rows, skipped %d.", imported, skipped)
	log.Printf("Queued processing for %d orders.", len(imp.resetThisRun))
}

func (imp *importer) run(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	columns, err := validateHeader(header)
	if err != nil {
		return 0, 0, err
	}

	lineNo := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, fmt.Errorf("read line %d: %w", lineNo+1, err)
		}
		lineNo++

		row, ok := imp.mapRow(columns, record, lineNo)
		if !ok {
			skipped++
			continue
		}

		if err := imp.importRow(ctx, row); err != nil {
			imp.logger.Error("Row import failed",
				zap.Int("line", row.line),
				zap.String("external_order_id", row.externalOrderID),
				zap.Error(err))
			skipped++
			continue
		}
		imported++
	}

	if err := imp.finalize(ctx); err != nil {
		return imported, skipped, err
	}
	return imported, skipped, nil
}

func validateHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func (imp *importer) mapRow(columns map[string]int, record []string, lineNo int) (row, bool) {
	if len(record) < len(columns) {
		imp.logger.Warn("Column count mismatch, skipping",
			zap.Int("line", lineNo),
			zap.Int("got", len(record)),
			zap.Int("expected", len(columns)))
		return row{}, false
	}

	field := func(name string) string {
		return strings.TrimSpace(record[columns[name]])
	}

	unitPrice, err := strconv.ParseInt(field("unit_price_cents"), 10, 64)
	if err != nil || unitPrice < 0 {
		imp.logger.Warn("Invalid unit_price_cents, skipping", zap.Int("line", lineNo))
		return row{}, false
	}
	qty, err := strconv.Atoi(field("qty"))
	if err != nil || qty < 1 {
		imp.logger.Warn("Invalid qty, skipping", zap.Int("line", lineNo))
		return row{}, false
	}
	placedAt, err := time.Parse(time.RFC3339, field("order_placed_at"))
	if err != nil {
		imp.logger.Warn("Invalid order_placed_at, skipping", zap.Int("line", lineNo))
		return row{}, false
	}

	return row{
		line:            lineNo,
		externalOrderID: field("external_order_id"),
		placedAt:        placedAt,
		currency:        field("currency"),
		customerExtID:   field("customer_id"),
		customerEmail:   field("customer_email"),
		customerName:    field("customer_name"),
		sku:             field("product_sku"),
		productName:     field("product_name"),
		unitPriceCents:  unitPrice,
		qty:             qty,
	}, true
}

// importRow upserts one CSV line's customer, product, order, and item in a
// single transaction. The first line seen for an order in this run clears
// its previous items, so re-importing a file replaces rather than appends.
func (imp *importer) importRow(ctx context.Context, row row) error {
	return imp.txr.InTx(ctx, func(r domain.Repo) error {
		customer, err := r.UpsertCustomer(ctx, row.customerExtID, row.customerEmail, row.customerName)
		if err != nil {
			return err
		}

		product, err := r.UpsertProduct(ctx, row.sku, row.productName, row.unitPriceCents, imp.defaultStock)
		if err != nil {
			return err
		}

		order, err := r.UpsertOrder(ctx, row.externalOrderID, customer.ID, row.currency, row.placedAt)
		if err != nil {
			return err
		}

		if !imp.resetThisRun[order.ID] {
			if err := r.DeleteOrderItems(ctx, order.ID); err != nil {
				return err
			}
			imp.resetThisRun[order.ID] = true
		}

		return r.AddOrderItem(ctx, &models.OrderItem{
			OrderID:        order.ID,
			ProductID:      product.ID,
			UnitPriceCents: row.unitPriceCents,
			Qty:            row.qty,
		})
	})
}

// finalize recomputes every touched order's total and schedules its
// processing exactly once.
func (imp *importer) finalize(ctx context.Context) error {
	for orderID := range imp.resetThisRun {
		total, err := imp.repo.RecomputeOrderTotal(ctx, orderID)
		if err != nil {
			return fmt.Errorf("order %d: recompute total: %w", orderID, err)
		}

		if err := imp.scheduler.EnqueueProcessOrder(ctx, orderID); err != nil {
			return fmt.Errorf("order %d: enqueue processing: %w", orderID, err)
		}

		imp.logger.Info("Order finalized",
			zap.Int64("order_id", orderID),
			zap.Int64("total_cents", total))
	}
	return nil
}
