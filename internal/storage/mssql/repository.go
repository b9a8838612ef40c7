package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"offers-harvester/internal/checksum"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
)

// Repository mirrors every snapshot into SQL Server:
//
//	TblOffers          one row per offer, Position keeps discovery order
//	TblOfferSnapshots  one row per dataset with count and checksum
//	TblLastUpdate      single freshness row
type Repository struct {
	db             *sql.DB
	commandTimeout time.Duration
	checksum       *checksum.Generator
	logger         *observability.Logger
}

func NewRepository(dsn string, commandTimeout time.Duration, logger *observability.Logger) (*Repository, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{
		db:             db,
		commandTimeout: commandTimeout,
		checksum:       checksum.NewGenerator(),
		logger:         logger,
	}, nil
}

// Write replaces the dataset's rows with offers in a single transaction.
func (r *Repository) Write(ctx context.Context, dataset string, offers []offer.Derived) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to roll back snapshot", "dataset", dataset, "error", rbErr.Error())
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM TblOffers WHERE [Dataset] = @Dataset`,
		sql.Named("Dataset", dataset),
	); err != nil {
		return fmt.Errorf("failed to clear dataset %s: %w", dataset, err)
	}

	if err = r.insertOffers(ctx, tx, dataset, offers); err != nil {
		return err
	}

	hash := r.checksum.GenerateSnapshotHash(offers)
	if _, err = tx.ExecContext(ctx, `
		MERGE INTO TblOfferSnapshots AS target
		USING (SELECT @Dataset AS Dataset) AS source
		ON target.[Dataset] = source.Dataset
		WHEN MATCHED THEN
			UPDATE SET
				[OfferCount] = @OfferCount,
				[CheckSum] = @CheckSum,
				[DT] = @DT
		WHEN NOT MATCHED THEN
			INSERT ([Dataset], [OfferCount], [CheckSum], [DT])
			VALUES (@Dataset, @OfferCount, @CheckSum, @DT);`,
		sql.Named("Dataset", dataset),
		sql.Named("OfferCount", len(offers)),
		sql.Named("CheckSum", hash),
		sql.Named("DT", time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", dataset, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", dataset, err)
	}

	r.logger.Debug("Snapshot mirrored",
		"dataset", dataset,
		"offers", len(offers),
		"checksum", hash,
	)
	return nil
}

func (r *Repository) insertOffers(ctx context.Context, tx *sql.Tx, dataset string, offers []offer.Derived) error {
	if len(offers) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO TblOffers
			([Dataset], [Position], [Category], [Product], [Image], [NormalPrice], [Discount], [ActualPrice], [Savings], [CheckSum])
		VALUES
			(@Dataset, @Position, @Category, @Product, @Image, @NormalPrice, @Discount, @ActualPrice, @Savings, @CheckSum)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	for i, o := range offers {
		if _, err := stmt.ExecContext(ctx,
			sql.Named("Dataset", dataset),
			sql.Named("Position", i),
			sql.Named("Category", o.Category),
			sql.Named("Product", o.Product),
			sql.Named("Image", o.Image),
			sql.Named("NormalPrice", o.NormalPrice),
			sql.Named("Discount", o.Discount),
			sql.Named("ActualPrice", o.ActualPrice),
			sql.Named("Savings", o.Savings),
			sql.Named("CheckSum", r.checksum.GenerateOfferHash(o)),
		); err != nil {
			return fmt.Errorf("failed to insert offer %d of %s: %w", i, dataset, err)
		}
	}
	return nil
}

// WriteTimestamp records the refresh time in the single TblLastUpdate row.
func (r *Repository) WriteTimestamp(ctx context.Context, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `
		MERGE INTO TblLastUpdate AS target
		USING (SELECT 1 AS UID) AS source
		ON target.[UID] = source.UID
		WHEN MATCHED THEN
			UPDATE SET [DT] = @DT
		WHEN NOT MATCHED THEN
			INSERT ([UID], [DT]) VALUES (1, @DT);
	`

	if _, err := r.db.ExecContext(ctx, query, sql.Named("DT", at.UTC())); err != nil {
		return fmt.Errorf("failed to update last update time: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
