// Command seed-db applies migrations and loads demo data into the database:
// stores, product variants, per-store coupons, shipping rules, and a set of
// API keys covering each role.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velesto/storefront/internal/domain/coupon"
	"github.com/velesto/storefront/internal/domain/shipping"
	"github.com/velesto/storefront/internal/repository"
)

type seedFile struct {
	Stores   []storeJSON   `json:"stores"`
	Variants []variantJSON `json:"variants"`
	Coupons  []couponJSON  `json:"coupons"`
	Shipping []ruleJSON    `json:"shipping_rules"`
	APIKeys  []apiKeyJSON  `json:"api_keys"`
}

type storeJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerUserID string `json:"owner_user_id"`
}

type variantJSON struct {
	VariantID       string          `json:"variant_id"`
	SizeID          string          `json:"size_id"`
	StoreID         string          `json:"store_id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Quantity        int             `json:"quantity"`
}

type couponJSON struct {
	StoreID         string          `json:"store_id"`
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
}

type ruleJSON struct {
	StoreID               string           `json:"store_id"`
	CountryID             string           `json:"country_id"`
	BaseFee               decimal.Decimal  `json:"base_fee"`
	FreeShippingThreshold *decimal.Decimal `json:"free_shipping_threshold"`
	FreeShippingCountries []string         `json:"free_shipping_countries"`
}

type apiKeyJSON struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/demo.json", "path to seed data JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	if err := seedStores(ctx, pool, seed.Stores); err != nil {
		return errors.Wrap(err, "seed stores")
	}
	if err := seedVariants(ctx, pool, seed.Variants); err != nil {
		return errors.Wrap(err, "seed variants")
	}
	if err := seedCoupons(ctx, pool, seed.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedShipping(ctx, pool, seed.Shipping); err != nil {
		return errors.Wrap(err, "seed shipping rules")
	}
	if err := seedAPIKeys(ctx, pool, seed.APIKeys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

const upsertStoreSQL = `INSERT INTO stores (id, name, owner_user_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, owner_user_id = EXCLUDED.owner_user_id`

func seedStores(ctx context.Context, pool *pgxpool.Pool, stores []storeJSON) error {
	slog.Info("upserting stores", slog.Int("count", len(stores)))

	for _, s := range stores {
		if _, err := pool.Exec(ctx, upsertStoreSQL, s.ID, s.Name, s.OwnerUserID); err != nil {
			return errors.Wrapf(err, "upsert store %s", s.ID)
		}

		slog.Info("upserted store", slog.String("id", s.ID), slog.String("name", s.Name))
	}

	return nil
}

const upsertVariantSQL = `INSERT INTO product_variants (variant_id, size_id, store_id, name, price, discount_percent, quantity)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (variant_id, size_id) DO UPDATE SET
		store_id = EXCLUDED.store_id,
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		discount_percent = EXCLUDED.discount_percent,
		quantity = EXCLUDED.quantity`

func seedVariants(ctx context.Context, pool *pgxpool.Pool, variants []variantJSON) error {
	slog.Info("upserting product variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		if _, err := pool.Exec(ctx, upsertVariantSQL,
			v.VariantID, v.SizeID, v.StoreID, v.Name, v.Price, v.DiscountPercent, v.Quantity,
		); err != nil {
			return errors.Wrapf(err, "upsert variant %s/%s", v.VariantID, v.SizeID)
		}
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, coupons []couponJSON) error {
	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	repo := repository.NewCouponRepository(pool)
	for _, cj := range coupons {
		c, err := coupon.New(cj.Code, cj.StoreID, cj.DiscountPercent, cj.StartDate, cj.EndDate)
		if err != nil {
			return errors.Wrapf(err, "invalid coupon %s/%s", cj.StoreID, cj.Code)
		}
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s/%s", cj.StoreID, cj.Code)
		}

		slog.Info("upserted coupon", slog.String("store", cj.StoreID), slog.String("code", cj.Code))
	}

	return nil
}

func seedShipping(ctx context.Context, pool *pgxpool.Pool, rules []ruleJSON) error {
	slog.Info("upserting shipping rules", slog.Int("count", len(rules)))

	repo := repository.NewShippingRepository(pool)
	for _, rj := range rules {
		rule := shipping.Rule{
			StoreID:               rj.StoreID,
			CountryID:             rj.CountryID,
			BaseFee:               rj.BaseFee,
			FreeShippingThreshold: rj.FreeShippingThreshold,
			FreeShippingCountries: rj.FreeShippingCountries,
		}
		if rule.BaseFee.IsNegative() {
			return errors.Errorf("negative base fee for %s/%s", rj.StoreID, rj.CountryID)
		}
		if err := repo.Upsert(ctx, &rule); err != nil {
			return errors.Wrapf(err, "upsert shipping rule %s/%s", rj.StoreID, rj.CountryID)
		}
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, role, active)
	VALUES ($1, $2, $3, $4, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash,
		user_id = EXCLUDED.user_id,
		role = EXCLUDED.role,
		active = TRUE`

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys []apiKeyJSON, pepper string) error {
	slog.Info("upserting api keys", slog.Int("count", len(keys)))

	for _, k := range keys {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(k.Key))
		keyHash := hex.EncodeToString(mac.Sum(nil))

		if _, err := pool.Exec(ctx, upsertAPIKeySQL, k.ID, keyHash, k.UserID, k.Role); err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.ID)
		}

		slog.Info("upserted api key", slog.String("id", k.ID), slog.String("role", k.Role))
	}

	return nil
}
