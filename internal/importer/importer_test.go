package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/database/dbtest"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/storage"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

const header = "product_name,business_id,banner_title,external_url,donation_amount,image_source\n"

func newTestImporter(t *testing.T) (*Importer, *dbtest.Fixture, *storage.LocalStorage) {
	t.Helper()
	f := dbtest.New(t)
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := zerolog.Nop()
	rec := metrics.NewRecorder()
	images := workflow.NewService(f.Store, rec, &logger, workflow.WithFiles(files))
	im := New(f.Store, images, files, DefaultOptions(), rec, &logger)
	return im, f, files
}

func TestRunPartialFailure(t *testing.T) {
	im, f, _ := newTestImporter(t)
	ctx := context.Background()

	csv := header +
		fmt.Sprintf("ホタテ 2kg,%d,ホタテ メイン,,10000,https://cdn.example.com/a.png\n", f.BusinessA1.ID) +
		"壊れた行,1,タイトル,\n" +
		fmt.Sprintf("ハッカ油,%d,ハッカ メイン,,5000,https://cdn.example.com/b.png\n", f.BusinessA2.ID)

	res, err := im.Run(ctx, f.Creator, File{Name: "products.csv", Content: []byte(csv)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 3")
	assert.True(t, strings.HasPrefix(res.RunID, "imp_"))

	// Earlier rows are kept.
	products, err := f.Store.ListProducts(ctx, database.ProductFilter{BusinessID: &f.BusinessA1.ID})
	require.NoError(t, err)
	require.Len(t, products, 2)
	imported := products[1]
	assert.Equal(t, "ホタテ 2kg", imported.Name)
	require.NotNil(t, imported.DonationAmount)
	assert.Equal(t, int64(10000), *imported.DonationAmount)
	assert.Equal(t, []string{"furusato-choice", "rakuten"}, imported.Portals)

	imgs, err := f.Store.ListImages(ctx, database.ImageFilter{ProductID: &imported.ID})
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, "ホタテ メイン", imgs[0].Title)
	assert.Equal(t, "https://cdn.example.com/a.png", imgs[0].Current().FilePath)
	assert.Equal(t, database.StatusPendingReview, imgs[0].Current().Status)
}

func TestRunRowValidation(t *testing.T) {
	im, f, _ := newTestImporter(t)

	csv := header +
		",1,title,,,\n" +
		"name,1,,,,\n" +
		"name,abc,title,,,\n" +
		"name,999,title,,,\n"

	res, err := im.Run(context.Background(), f.Admin, File{Name: "bad.csv", Content: []byte(csv)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 4, res.FailedCount)
	assert.Equal(t, []string{
		"row 2: product_name is required",
		"row 3: banner_title is required",
		`row 4: business_id "abc" is not a number`,
		"row 5: business 999 not found",
	}, res.Errors)
}

func TestRunFailedImageLeavesNoProduct(t *testing.T) {
	im, f, _ := newTestImporter(t)
	ctx := context.Background()

	before, err := f.Store.ListProducts(ctx, database.ProductFilter{BusinessID: &f.BusinessA1.ID})
	require.NoError(t, err)

	csv := header + fmt.Sprintf("長いタイトル,%d,%s,,,https://cdn.example.com/a.png\n", f.BusinessA1.ID, strings.Repeat("あ", 201))
	res, err := im.Run(ctx, f.Creator, File{Name: "long.csv", Content: []byte(csv)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "row 2: create image")
	assert.Empty(t, res.ProductIDs)

	after, err := f.Store.ListProducts(ctx, database.ProductFilter{BusinessID: &f.BusinessA1.ID})
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestRunImageResolution(t *testing.T) {
	im, f, files := newTestImporter(t)
	ctx := context.Background()

	csv := header +
		fmt.Sprintf("A,%d,uploaded,,,a.png\n", f.BusinessA2.ID) +
		fmt.Sprintf("B,%d,missing,https://shop.example.com/b,,nope.png\n", f.BusinessA2.ID) +
		fmt.Sprintf("C,%d,reused,,not-a-number,a.png\n", f.BusinessA2.ID)

	res, err := im.Run(ctx, f.Creator, File{Name: "in.csv", Content: []byte(csv)},
		[]File{{Name: "a.png", ContentType: "image/png", Content: []byte("png")}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], `row 3: image "nope.png" was not uploaded`)
	assert.Contains(t, res.Warnings[1], "row 4: donation_amount")

	paths := map[string]string{}
	for _, id := range res.ProductIDs {
		imgs, err := f.Store.ListImages(ctx, database.ImageFilter{ProductID: &id})
		require.NoError(t, err)
		require.Len(t, imgs, 1)
		paths[imgs[0].Title] = imgs[0].Current().FilePath
	}
	assert.Equal(t, storage.BuildImportKey(res.RunID, "a.png"), paths["uploaded"])
	assert.Equal(t, paths["uploaded"], paths["reused"])
	assert.Equal(t, DefaultOptions().PlaceholderImage, paths["missing"])

	content, err := files.Get(ctx, paths["uploaded"])
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), content)

	// Business A2 lists no portals, so the defaults apply.
	p, err := f.Store.GetProduct(ctx, res.ProductIDs[0])
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().DefaultPortals, p.Portals)
}

func TestRunRowDelay(t *testing.T) {
	im, f, _ := newTestImporter(t)
	im.opts.RowDelay = 50 * time.Millisecond
	var slept []time.Duration
	im.sleep = func(d time.Duration) { slept = append(slept, d) }

	csv := header +
		fmt.Sprintf("A,%d,t,,,https://x/a.png\n", f.BusinessA1.ID) +
		fmt.Sprintf("B,%d,t,,,https://x/b.png\n", f.BusinessA1.ID) +
		fmt.Sprintf("C,%d,t,,,https://x/c.png\n", f.BusinessA1.ID)

	res, err := im.Run(context.Background(), f.Admin, File{Name: "in.csv", Content: []byte(csv)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, slept)
}

func TestRunPermissions(t *testing.T) {
	im, f, _ := newTestImporter(t)

	_, err := im.Run(context.Background(), f.MunicipalityAUser, File{Name: "in.csv", Content: []byte(header)}, nil)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = im.Run(context.Background(), f.Admin, File{Name: "in.csv"}, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
