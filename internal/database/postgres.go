package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on PostgreSQL. Ids come from BIGSERIAL
// sequences; cascades and unlinking are enforced by foreign keys.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for health reporting.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// translate maps driver errors onto the store's sentinel errors.
func translate(err error, onForeignKey error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", onForeignKey, pgErr.Detail)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Detail)
		}
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err, ErrInvalidReference)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// setClause accumulates "col = $n" fragments for partial updates.
type setClause struct {
	cols []string
	args []any
}

func (c *setClause) add(col string, v any) {
	c.args = append(c.args, v)
	c.cols = append(c.cols, fmt.Sprintf("%s = $%d", col, len(c.args)))
}

func (c *setClause) exec(ctx context.Context, pool *pgxpool.Pool, table string, id int64) error {
	if len(c.cols) == 0 {
		var exists bool
		err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	}
	c.args = append(c.args, id)
	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(c.cols, ", "), len(c.args))
	return expectOne(pool.Exec(ctx, sql, c.args...))
}

// Municipalities

const municipalityColumns = `id, name, code, created_at`

func scanMunicipality(row pgx.Row) (Municipality, error) {
	var m Municipality
	err := row.Scan(&m.ID, &m.Name, &m.Code, &m.CreatedAt)
	return m, err
}

func (s *PostgresStore) ListMunicipalities(ctx context.Context) ([]Municipality, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+municipalityColumns+` FROM municipalities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}
	return collect(rows, scanMunicipality)
}

func (s *PostgresStore) GetMunicipality(ctx context.Context, id int64) (*Municipality, error) {
	m, err := scanMunicipality(s.pool.QueryRow(ctx, `SELECT `+municipalityColumns+` FROM municipalities WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &m, nil
}

func (s *PostgresStore) AddMunicipality(ctx context.Context, in Municipality) (*Municipality, error) {
	m, err := scanMunicipality(s.pool.QueryRow(ctx, `
		INSERT INTO municipalities (name, code) VALUES ($1, $2)
		RETURNING `+municipalityColumns, in.Name, in.Code))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &m, nil
}

func (s *PostgresStore) UpdateMunicipality(ctx context.Context, id int64, u MunicipalityUpdate) error {
	var c setClause
	if u.Name != nil {
		c.add("name", *u.Name)
	}
	if u.Code != nil {
		c.add("code", *u.Code)
	}
	return c.exec(ctx, s.pool, "municipalities", id)
}

func (s *PostgresStore) DeleteMunicipality(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM municipalities WHERE id = $1`, id)
	if err != nil {
		return translate(err, ErrConflict)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Businesses

const businessColumns = `id, municipality_id, name, code, category, portals, contact_name, contact_email, contact_phone, created_at`

func scanBusiness(row pgx.Row) (Business, error) {
	var b Business
	err := row.Scan(&b.ID, &b.MunicipalityID, &b.Name, &b.Code, &b.Category, &b.Portals,
		&b.ContactName, &b.ContactEmail, &b.ContactPhone, &b.CreatedAt)
	return b, err
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, f BusinessFilter) ([]Business, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+businessColumns+` FROM businesses
		WHERE ($1::BIGINT IS NULL OR municipality_id = $1)
		ORDER BY id`, f.MunicipalityID)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	return collect(rows, scanBusiness)
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id int64) (*Business, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &b, nil
}

func (s *PostgresStore) AddBusiness(ctx context.Context, in Business) (*Business, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, `
		INSERT INTO businesses (municipality_id, name, code, category, portals, contact_name, contact_email, contact_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+businessColumns,
		in.MunicipalityID, in.Name, in.Code, in.Category, NormalizePortals(in.Portals),
		in.ContactName, in.ContactEmail, in.ContactPhone))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBusiness(ctx context.Context, id int64, u BusinessUpdate) error {
	var c setClause
	if u.MunicipalityID != nil {
		c.add("municipality_id", *u.MunicipalityID)
	}
	if u.Name != nil {
		c.add("name", *u.Name)
	}
	if u.Code != nil {
		c.add("code", *u.Code)
	}
	if u.Category != nil {
		c.add("category", *u.Category)
	}
	if u.Portals != nil {
		c.add("portals", NormalizePortals(*u.Portals))
	}
	if u.ContactName != nil {
		c.add("contact_name", *u.ContactName)
	}
	if u.ContactEmail != nil {
		c.add("contact_email", *u.ContactEmail)
	}
	if u.ContactPhone != nil {
		c.add("contact_phone", *u.ContactPhone)
	}
	return c.exec(ctx, s.pool, "businesses", id)
}

func (s *PostgresStore) DeleteBusiness(ctx context.Context, id int64) error {
	return expectOne(s.pool.Exec(ctx, `DELETE FROM businesses WHERE id = $1`, id))
}

// Products

const productColumns = `id, business_id, project_id, name, description, genre, product_code, deadline,
	unread_comments_count, donation_amount, temperature_range, has_materials, portals, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.ProjectID, &p.Name, &p.Description, &p.Genre, &p.ProductCode,
		&p.Deadline, &p.UnreadCommentsCount, &p.DonationAmount, &p.TemperatureRange, &p.HasMaterials,
		&p.Portals, &p.CreatedAt)
	return p, err
}

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1::BIGINT IS NULL OR business_id = $1)
		  AND ($2::BIGINT IS NULL OR project_id = $2)
		ORDER BY id`, f.BusinessID, f.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collect(rows, scanProduct)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &p, nil
}

func (s *PostgresStore) AddProduct(ctx context.Context, in Product) (*Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `
		INSERT INTO products (business_id, project_id, name, description, genre, product_code, deadline,
			donation_amount, temperature_range, has_materials, portals)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+productColumns,
		in.BusinessID, in.ProjectID, in.Name, in.Description, in.Genre, in.ProductCode, in.Deadline,
		in.DonationAmount, in.TemperatureRange, in.HasMaterials, NormalizePortals(in.Portals)))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, id int64, u ProductUpdate) error {
	var c setClause
	if u.Name != nil {
		c.add("name", *u.Name)
	}
	if u.Description != nil {
		c.add("description", *u.Description)
	}
	if u.Genre != nil {
		c.add("genre", *u.Genre)
	}
	if u.ProductCode != nil {
		c.add("product_code", *u.ProductCode)
	}
	if u.ClearDeadline {
		c.add("deadline", nil)
	} else if u.Deadline != nil {
		c.add("deadline", *u.Deadline)
	}
	if u.ClearProject {
		c.add("project_id", nil)
	} else if u.ProjectID != nil {
		c.add("project_id", *u.ProjectID)
	}
	if u.DonationAmount != nil {
		c.add("donation_amount", *u.DonationAmount)
	}
	if u.TemperatureRange != nil {
		c.add("temperature_range", string(*u.TemperatureRange))
	}
	if u.HasMaterials != nil {
		c.add("has_materials", *u.HasMaterials)
	}
	if u.Portals != nil {
		c.add("portals", NormalizePortals(*u.Portals))
	}
	return c.exec(ctx, s.pool, "products", id)
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	return expectOne(s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id))
}

// Projects

const projectColumns = `id, name, municipality_id, status, collection_deadline, deadline, created_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.MunicipalityID, &p.Status, &p.CollectionDeadline, &p.Deadline, &p.CreatedAt)
	return p, err
}

func (s *PostgresStore) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE ($1::BIGINT IS NULL OR municipality_id = $1)
		ORDER BY id`, f.MunicipalityID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return collect(rows, scanProject)
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &p, nil
}

func (s *PostgresStore) AddProject(ctx context.Context, in Project) (*Project, error) {
	if in.Status == "" {
		in.Status = ProjectNotStarted
	}
	p, err := scanProject(s.pool.QueryRow(ctx, `
		INSERT INTO projects (name, municipality_id, status, collection_deadline, deadline)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+projectColumns,
		in.Name, in.MunicipalityID, string(in.Status), in.CollectionDeadline, in.Deadline))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, id int64, u ProjectUpdate) error {
	var c setClause
	if u.Name != nil {
		c.add("name", *u.Name)
	}
	if u.Status != nil {
		c.add("status", string(*u.Status))
	}
	if u.CollectionDeadline != nil {
		c.add("collection_deadline", *u.CollectionDeadline)
	}
	if u.Deadline != nil {
		c.add("deadline", *u.Deadline)
	}
	return c.exec(ctx, s.pool, "projects", id)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id int64) error {
	return expectOne(s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id))
}

// Images

const imageColumns = `id, product_id, title, external_url, created_by_admin_id, created_at`
const versionColumns = `id, image_id, version_number, file_path, status, submitted_at, created_at`

func scanImage(row pgx.Row) (ImageEntity, error) {
	var i ImageEntity
	err := row.Scan(&i.ID, &i.ProductID, &i.Title, &i.ExternalURL, &i.CreatedByAdminID, &i.CreatedAt)
	return i, err
}

func scanVersion(row pgx.Row) (ImageVersion, error) {
	var v ImageVersion
	err := row.Scan(&v.ID, &v.ImageID, &v.VersionNumber, &v.FilePath, &v.Status, &v.SubmittedAt, &v.CreatedAt)
	return v, err
}

func (s *PostgresStore) ListImages(ctx context.Context, f ImageFilter) ([]ImageEntity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+imageColumns+` FROM images
		WHERE ($1::BIGINT IS NULL OR product_id = $1)
		ORDER BY id`, f.ProductID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	images, err := collect(rows, scanImage)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return images, nil
	}

	ids := make([]int64, len(images))
	byID := make(map[int64]int, len(images))
	for i, img := range images {
		ids[i] = img.ID
		byID[img.ID] = i
	}

	vrows, err := s.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM image_versions
		WHERE image_id = ANY($1)
		ORDER BY image_id, version_number`, ids)
	if err != nil {
		return nil, fmt.Errorf("list image versions: %w", err)
	}
	versions, err := collect(vrows, scanVersion)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		i := byID[v.ImageID]
		images[i].Versions = append(images[i].Versions, v)
	}
	return images, nil
}

func (s *PostgresStore) GetImage(ctx context.Context, id int64) (*ImageEntity, error) {
	img, err := scanImage(s.pool.QueryRow(ctx, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM image_versions
		WHERE image_id = $1 ORDER BY version_number`, id)
	if err != nil {
		return nil, fmt.Errorf("get image versions: %w", err)
	}
	if img.Versions, err = collect(rows, scanVersion); err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *PostgresStore) AddImage(ctx context.Context, in NewImage) (*ImageEntity, error) {
	var img ImageEntity
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		img, err = scanImage(tx.QueryRow(ctx, `
			INSERT INTO images (product_id, title, external_url, created_by_admin_id)
			VALUES ($1, $2, $3, $4)
			RETURNING `+imageColumns,
			in.ProductID, in.Title, in.ExternalURL, in.CreatedByAdminID))
		if err != nil {
			return err
		}
		v, err := scanVersion(tx.QueryRow(ctx, `
			INSERT INTO image_versions (image_id, version_number, file_path, status, submitted_at, created_at)
			VALUES ($1, 1, $2, $3, $4, $4)
			RETURNING `+versionColumns,
			img.ID, in.FilePath, string(in.Status), img.CreatedAt))
		if err != nil {
			return err
		}
		img.Versions = []ImageVersion{v}
		return nil
	})
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &img, nil
}

func (s *PostgresStore) AppendVersion(ctx context.Context, imageID int64, filePath string, status ImageStatus) (*ImageVersion, error) {
	var v ImageVersion
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM images WHERE id = $1 FOR UPDATE`, imageID).Scan(&locked); err != nil {
			return err
		}
		var err error
		v, err = scanVersion(tx.QueryRow(ctx, `
			INSERT INTO image_versions (image_id, version_number, file_path, status)
			SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3
			FROM image_versions WHERE image_id = $1
			RETURNING `+versionColumns,
			imageID, filePath, string(status)))
		return err
	})
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &v, nil
}

func (s *PostgresStore) UpdateVersionStatus(ctx context.Context, imageID, versionID int64, status ImageStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE image_versions SET status = $3
		WHERE id = $2 AND image_id = $1`, imageID, versionID, string(status))
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: version %d of image %d", ErrNotFound, versionID, imageID)
	}
	return nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, id int64) error {
	return expectOne(s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id))
}

// Comments

const commentColumns = `id, image_id, commenter_type, commenter_id, commenter_name, body, annotation, created_at`

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.ImageID, &c.CommenterType, &c.CommenterID, &c.CommenterName, &c.Body, &c.Annotation, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) ListComments(ctx context.Context, imageID int64) ([]Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+commentColumns+` FROM comments
		WHERE image_id = $1 ORDER BY id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return collect(rows, scanComment)
}

func (s *PostgresStore) GetComment(ctx context.Context, id int64) (*Comment, error) {
	c, err := scanComment(s.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &c, nil
}

func (s *PostgresStore) AddComment(ctx context.Context, in Comment) (*Comment, error) {
	var c Comment
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		c, err = scanComment(tx.QueryRow(ctx, `
			INSERT INTO comments (image_id, commenter_type, commenter_id, commenter_name, body, annotation)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+commentColumns,
			in.ImageID, string(in.CommenterType), in.CommenterID, in.CommenterName, in.Body, in.Annotation))
		if err != nil || !in.CommenterType.CountsAsUnread() {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE products SET unread_comments_count = unread_comments_count + 1
			WHERE id = (SELECT product_id FROM images WHERE id = $1)`, in.ImageID)
		return err
	})
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			imageID       int64
			commenterType CommenterType
		)
		err := tx.QueryRow(ctx, `DELETE FROM comments WHERE id = $1 RETURNING image_id, commenter_type`, id).
			Scan(&imageID, &commenterType)
		if err != nil {
			return translate(err, ErrInvalidReference)
		}
		if !commenterType.CountsAsUnread() {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE products SET unread_comments_count = GREATEST(unread_comments_count - 1, 0)
			WHERE id = (SELECT product_id FROM images WHERE id = $1)`, imageID)
		return err
	})
}

func (s *PostgresStore) ResetUnreadComments(ctx context.Context, productID int64) error {
	return expectOne(s.pool.Exec(ctx, `UPDATE products SET unread_comments_count = 0 WHERE id = $1`, productID))
}

// Notifications

const notificationColumns = `id, image_id, title, message, is_read, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.ImageID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (s *PostgresStore) ListNotifications(ctx context.Context, f NotificationFilter) ([]Notification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE (NOT $1 OR NOT is_read)
		ORDER BY id DESC LIMIT $2`, f.UnreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return collect(rows, scanNotification)
}

func (s *PostgresStore) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &n, nil
}

func (s *PostgresStore) AddNotification(ctx context.Context, in Notification) (*Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, `
		INSERT INTO notifications (image_id, title, message, is_read)
		VALUES ($1, $2, $3, $4)
		RETURNING `+notificationColumns, in.ImageID, in.Title, in.Message, in.IsRead))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &n, nil
}

func (s *PostgresStore) SetNotificationRead(ctx context.Context, id int64, read bool) error {
	return expectOne(s.pool.Exec(ctx, `UPDATE notifications SET is_read = $2 WHERE id = $1`, id, read))
}

// Users

const userColumns = `id, email, name, password_hash, role, municipality_id, business_id, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.MunicipalityID, &u.BusinessID, &u.CreatedAt)
	return u, err
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collect(rows, scanUser)
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &u, nil
}

func (s *PostgresStore) AddUser(ctx context.Context, in User) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, municipality_id, business_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		in.Email, in.Name, in.PasswordHash, string(in.Role), in.MunicipalityID, in.BusinessID))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &u, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
