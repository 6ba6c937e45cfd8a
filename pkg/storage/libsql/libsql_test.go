//go:build libsql

package libsql_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/storage/libsql"
	"github.com/papercomputeco/frames/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("libsql",
	func() storage.Driver {
		driver, err := libsql.NewDriver(context.Background(), filepath.Join(GinkgoT().TempDir(), "frames.db"))
		Expect(err).NotTo(HaveOccurred())
		return driver
	},
	storagetest.Corruption{
		Content: func(d storage.Driver, id identity.FrameID, content []byte) {
			_, err := d.(*libsql.Driver).DB().Exec(`UPDATE frames SET content = ? WHERE id = ?`, content, id[:])
			Expect(err).NotTo(HaveOccurred())
		},
		Bytes: func(d storage.Driver, id identity.FrameID) {
			_, err := d.(*libsql.Driver).DB().Exec(`UPDATE frames SET fields = 'nul' WHERE id = ?`, id[:])
			Expect(err).NotTo(HaveOccurred())
		},
	},
)
