// Package importer creates products and their banner images in bulk from
// a CSV or XLSX sheet plus optional image files.
//
// Each data row has six columns: product_name, business_id, banner_title,
// external_url, donation_amount, image_source. Rows are processed one at a
// time in file order. A bad row is recorded and skipped; rows created
// before it are kept.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/pkg/cuid2"
	"github.com/bannerdesk/banner-service/internal/policy"
	"github.com/bannerdesk/banner-service/internal/storage"
	"github.com/bannerdesk/banner-service/internal/telemetry"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

// Columns is the number of columns every data row must have.
const Columns = 6

const (
	colProductName = iota
	colBusinessID
	colBannerTitle
	colExternalURL
	colDonation
	colImageSource
)

// Options configures an Importer.
type Options struct {
	// PlaceholderImage is used when a row's image cannot be resolved.
	PlaceholderImage string `mapstructure:"placeholder_image"`
	// DefaultPortals is assigned to products whose business lists none.
	DefaultPortals []string `mapstructure:"default_portals"`
	// RowDelay paces row processing for progress display. Zero disables it.
	RowDelay time.Duration `mapstructure:"row_delay"`
}

func DefaultOptions() Options {
	return Options{
		PlaceholderImage: "/images/placeholder.png",
		DefaultPortals:   []string{"furusato-choice"},
	}
}

// File is an uploaded sheet or image.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Result summarizes one import run.
type Result struct {
	RunID        string        `json:"runId"`
	SuccessCount int           `json:"successCount"`
	FailedCount  int           `json:"failedCount"`
	Errors       []string      `json:"errors"`
	Warnings     []string      `json:"warnings"`
	ProductIDs   []int64       `json:"productIds"`
	Duration     time.Duration `json:"duration"`
}

// Importer runs bulk imports.
type Importer struct {
	store   database.Store
	images  *workflow.Service
	files   storage.Storage
	opts    Options
	metrics *metrics.Recorder
	logger  *zerolog.Logger
	sleep   func(time.Duration)
}

func New(store database.Store, images *workflow.Service, files storage.Storage, opts Options, rec *metrics.Recorder, logger *zerolog.Logger) *Importer {
	return &Importer{
		store:   store,
		images:  images,
		files:   files,
		opts:    opts,
		metrics: rec,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// ReadRows parses sheet as XLSX when its name ends in .xlsx and as CSV
// otherwise.
func ReadRows(sheet File) ([]Row, error) {
	if strings.EqualFold(path.Ext(sheet.Name), ".xlsx") {
		return ReadXLSX(sheet.Content)
	}
	return ReadCSV(sheet.Content)
}

// Run imports every row of sheet. Image files are matched to rows by exact
// file name. Only row-level problems are reported in the result; an error
// is returned when the sheet cannot be read or the actor may not import.
func (im *Importer) Run(ctx context.Context, actor *identity.User, sheet File, images []File) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "importer.Run", attribute.String("sheet", sheet.Name))
	defer func() { telemetry.EndSpan(span, err) }()

	if !policy.CanUpload(actor) {
		im.metrics.Denied("import")
		return nil, apperr.Forbidden("only admins and creators can import")
	}
	if len(sheet.Content) == 0 {
		return nil, apperr.Validation("import sheet %q is empty", sheet.Name)
	}

	rows, err := ReadRows(sheet)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation("cannot read %s", sheet.Name), err)
	}

	start := time.Now()
	run := &runState{
		Importer: im,
		actor:    actor,
		result: &Result{
			RunID:      cuid2.New(cuid2.PrefixImport),
			Errors:     []string{},
			Warnings:   []string{},
			ProductIDs: []int64{},
		},
		uploads:    make(map[string]File, len(images)),
		stored:     make(map[string]string),
		businesses: make(map[int64]*database.Business),
	}
	for _, f := range images {
		run.uploads[f.Name] = f
	}

	logger := im.logger.With().Str("run_id", run.result.RunID).Str("sheet", sheet.Name).Logger()
	run.logger = &logger
	logger.Info().Int("rows", len(rows)).Int("images", len(images)).Msg("Import started")

	for i, row := range rows {
		if i > 0 && im.opts.RowDelay > 0 {
			im.sleep(im.opts.RowDelay)
		}
		if err := run.importRow(ctx, row); err != nil {
			run.result.FailedCount++
			run.result.Errors = append(run.result.Errors, err.Error())
			logger.Warn().Int("row", row.Line).Err(err).Msg("Import row failed")
			continue
		}
		run.result.SuccessCount++
	}

	run.result.Duration = time.Since(start)
	im.metrics.ImportFinished(run.result.SuccessCount, run.result.FailedCount, run.result.Duration)
	logger.Info().
		Int("success", run.result.SuccessCount).
		Int("failed", run.result.FailedCount).
		Dur("duration", run.result.Duration).
		Msg("Import finished")
	return run.result, nil
}

// runState holds per-run caches.
type runState struct {
	*Importer
	actor  *identity.User
	result *Result
	logger *zerolog.Logger

	uploads    map[string]File
	stored     map[string]string
	businesses map[int64]*database.Business
}

func (r *runState) warn(line int, format string, args ...any) {
	msg := fmt.Sprintf("row %d: ", line) + fmt.Sprintf(format, args...)
	r.result.Warnings = append(r.result.Warnings, msg)
	r.logger.Warn().Int("row", line).Msg(msg)
}

func (r *runState) importRow(ctx context.Context, row Row) error {
	f := row.Fields
	if len(f) < Columns {
		return fmt.Errorf("row %d: expected %d columns, got %d", row.Line, Columns, len(f))
	}

	name, title := f[colProductName], f[colBannerTitle]
	if name == "" {
		return fmt.Errorf("row %d: product_name is required", row.Line)
	}
	if title == "" {
		return fmt.Errorf("row %d: banner_title is required", row.Line)
	}
	businessID, err := strconv.ParseInt(f[colBusinessID], 10, 64)
	if err != nil {
		return fmt.Errorf("row %d: business_id %q is not a number", row.Line, f[colBusinessID])
	}
	business, err := r.business(ctx, businessID)
	if err != nil {
		return fmt.Errorf("row %d: %w", row.Line, err)
	}

	var donation *int64
	if raw := f[colDonation]; raw != "" {
		if amount, ok := parseAmount(raw); ok {
			donation = &amount
		} else {
			r.warn(row.Line, "donation_amount %q is not a number, left empty", raw)
		}
	}

	filePath, err := r.resolveImage(ctx, row.Line, f[colImageSource])
	if err != nil {
		return fmt.Errorf("row %d: %w", row.Line, err)
	}

	portals := business.Portals
	if len(portals) == 0 {
		portals = r.opts.DefaultPortals
	}
	product, err := r.store.AddProduct(ctx, database.Product{
		BusinessID:     business.ID,
		Name:           name,
		DonationAmount: donation,
		Portals:        portals,
	})
	if err != nil {
		return fmt.Errorf("row %d: create product: %w", row.Line, err)
	}

	var externalURL *string
	if u := f[colExternalURL]; u != "" {
		externalURL = &u
	}
	_, err = r.images.CreateImage(ctx, r.actor, workflow.CreateImageInput{
		ProductID:   product.ID,
		Title:       title,
		ExternalURL: externalURL,
		FilePath:    filePath,
	})
	if err != nil {
		// A failed row leaves nothing behind.
		if derr := r.store.DeleteProduct(ctx, product.ID); derr != nil {
			r.logger.Error().Err(derr).Int("row", row.Line).Int64("product_id", product.ID).Msg("Failed to remove product of failed row")
		}
		return fmt.Errorf("row %d: create image: %w", row.Line, err)
	}
	r.result.ProductIDs = append(r.result.ProductIDs, product.ID)
	return nil
}

func (r *runState) business(ctx context.Context, id int64) (*database.Business, error) {
	if b, ok := r.businesses[id]; ok {
		return b, nil
	}
	b, err := r.store.GetBusiness(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("business %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	r.businesses[id] = b
	return b, nil
}

// resolveImage returns the file path for a row's image_source: URLs are
// used as is, file names are looked up among the uploaded images, and
// anything else falls back to the placeholder.
func (r *runState) resolveImage(ctx context.Context, line int, source string) (string, error) {
	if strings.HasPrefix(source, "http") {
		return source, nil
	}
	if source == "" {
		r.warn(line, "image_source is empty, using placeholder")
		return r.opts.PlaceholderImage, nil
	}
	if key, ok := r.stored[source]; ok {
		return key, nil
	}
	img, ok := r.uploads[source]
	if !ok {
		r.warn(line, "image %q was not uploaded, using placeholder", source)
		return r.opts.PlaceholderImage, nil
	}
	if r.files == nil {
		return "", errors.New("file storage is not configured")
	}

	key := storage.BuildImportKey(r.result.RunID, img.Name)
	err := r.files.Put(ctx, key, img.Content, &storage.Metadata{
		ContentType:  img.ContentType,
		OriginalName: img.Name,
		UploadedBy:   r.actor.ID,
		UploadedAt:   time.Now(),
		Custom:       map[string]string{"run_id": r.result.RunID},
	})
	if err != nil {
		return "", fmt.Errorf("store image %q: %w", img.Name, err)
	}
	r.stored[source] = key
	return key, nil
}

// parseAmount accepts plain integers plus the thousands separators and yen
// marks spreadsheets add, e.g. "¥10,000" or "10,000円".
func parseAmount(s string) (int64, bool) {
	s = strings.NewReplacer(",", "", "¥", "", "￥", "", "円", "", " ", "").Replace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
