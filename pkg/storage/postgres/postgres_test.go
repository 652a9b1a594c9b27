package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/storage/postgres"
	"github.com/papercomputeco/truthstore/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("TRUTHSTORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("TRUTHSTORE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var tables = []string{
	"entities", "observations", "snapshots", "raw_fragments",
	"merge_records", "schema_versions", "schema_activations",
}

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func(ctx context.Context) storage.Driver {
		driver, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		for _, table := range tables {
			_, err := driver.DB.ExecContext(ctx, "DELETE FROM "+table)
			Expect(err).NotTo(HaveOccurred())
		}
		return driver
	})
})
