package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/postgres"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
)

var _ storage.Driver = (*postgres.Driver)(nil)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("FRAMES_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("FRAMES_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func openClean() storage.Driver {
	ctx := context.Background()
	driver, err := postgres.NewDriver(ctx, connStr())
	Expect(err).NotTo(HaveOccurred())

	// Clean all tables before each test for isolation.
	_, err = driver.DB().ExecContext(ctx, `TRUNCATE nodes, frames, commits, frame_set_members,
		frame_set_roots, heads, frame_type_heads RESTART IDENTITY`)
	Expect(err).NotTo(HaveOccurred())
	return driver
}

var _ = storagetest.DescribeDriver("postgres", openClean,
	storagetest.Corruption{
		Content: func(d storage.Driver, id identity.FrameID, content []byte) {
			drv := d.(*postgres.Driver)
			_, err := drv.DB().Exec(`UPDATE frames SET content = $1 WHERE id = $2`, content, id[:])
			Expect(err).NotTo(HaveOccurred())
		},
		Bytes: func(d storage.Driver, id identity.FrameID) {
			drv := d.(*postgres.Driver)
			_, err := drv.DB().Exec(`UPDATE frames SET fields = 'nul' WHERE id = $1`, id[:])
			Expect(err).NotTo(HaveOccurred())
		},
	},
)
