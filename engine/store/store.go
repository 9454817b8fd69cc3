// Package store persists announcements and parse templates in a local
// sqlite database. Every write normalizes the announcement natural key
// so duplicate detection stays a plain equality query.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ratedesk/disclosure-engine/engine/domain"
)

// Store wraps the gorm handle together with the audit user stamped onto
// every row it writes.
type Store struct {
	db   *gorm.DB
	user string
	log  *slog.Logger
}

// Open opens (creating if needed) the sqlite database at path and
// migrates the schema.
func Open(path, user string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := db.AutoMigrate(
		&domain.Announcement{},
		&templateRowMR{},
		&templateRowNZ{},
		&descriptorRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, user: user, log: log}, nil
}

// normalizeKey produces the canonical form of the natural key. Issuer
// codes compare case-insensitively, titles ignore surrounding space and
// publication dates compare as pure calendar days. The day is rebuilt
// from the date components rather than truncated, so a zoned timestamp
// keeps its calendar day.
func normalizeKey(code, title string, pubDate time.Time) (string, string, time.Time) {
	y, m, d := pubDate.Date()
	return strings.ToUpper(strings.TrimSpace(code)),
		strings.TrimSpace(title),
		time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FindDuplicate returns the stored announcement matching the normalized
// natural key, or domain.ErrNotFound when none exists.
func (s *Store) FindDuplicate(ctx context.Context, code, title string, pubDate time.Time) (domain.Announcement, error) {
	code, title, pubDate = normalizeKey(code, title, pubDate)
	var ann domain.Announcement
	err := s.db.WithContext(ctx).
		Where("issuer_code = ? AND title = ? AND pub_date = ?", code, title, pubDate).
		First(&ann).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Announcement{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Announcement{}, fmt.Errorf("find duplicate: %w", errors.Join(domain.ErrPersistence, err))
	}
	return ann, nil
}

// CreateIfNotExists stores ann unless an announcement with the same
// natural key already exists. It returns the stored row and whether a
// new row was created.
func (s *Store) CreateIfNotExists(ctx context.Context, ann domain.Announcement) (domain.Announcement, bool, error) {
	return s.createIfNotExists(s.db.WithContext(ctx), ann)
}

func (s *Store) createIfNotExists(tx *gorm.DB, ann domain.Announcement) (domain.Announcement, bool, error) {
	ann.IssuerCode, ann.Title, ann.PubDate = normalizeKey(ann.IssuerCode, ann.Title, ann.PubDate)

	var existing domain.Announcement
	err := tx.Where("issuer_code = ? AND title = ? AND pub_date = ?",
		ann.IssuerCode, ann.Title, ann.PubDate).First(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Announcement{}, false, fmt.Errorf("duplicate check: %w", errors.Join(domain.ErrPersistence, err))
	}

	ann.ID = 0
	ann.UpdatedBy = s.user
	if err := tx.Create(&ann).Error; err != nil {
		return domain.Announcement{}, false, fmt.Errorf("create announcement: %w", errors.Join(domain.ErrPersistence, err))
	}
	return ann, true, nil
}

// SaveAll persists a scraped batch inside one transaction, skipping
// announcements already present. It reports how many rows were new and
// how many were duplicates.
func (s *Store) SaveAll(ctx context.Context, anns []domain.Announcement) (created, duplicates int, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ann := range anns {
			_, isNew, err := s.createIfNotExists(tx, ann)
			if err != nil {
				return err
			}
			if isNew {
				created++
			} else {
				duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, duplicates, nil
}

// Get returns the announcement with the given id.
func (s *Store) Get(ctx context.Context, id uint) (domain.Announcement, error) {
	var ann domain.Announcement
	err := s.db.WithContext(ctx).First(&ann, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Announcement{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Announcement{}, fmt.Errorf("get announcement %d: %w", id, errors.Join(domain.ErrPersistence, err))
	}
	return ann, nil
}

// MarkDownloaded records the terminal (or in-flight) download state for
// one announcement.
func (s *Store) MarkDownloaded(ctx context.Context, id uint, state domain.DownloadState) error {
	res := s.db.WithContext(ctx).Model(&domain.Announcement{}).
		Where("id = ?", id).
		Updates(map[string]any{"downloaded": state, "update_user": s.user})
	if res.Error != nil {
		return fmt.Errorf("mark downloaded %d: %w", id, errors.Join(domain.ErrPersistence, res.Error))
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateResolvedURL records the direct document URL discovered for a
// masked announcement link.
func (s *Store) UpdateResolvedURL(ctx context.Context, id uint, url string) error {
	res := s.db.WithContext(ctx).Model(&domain.Announcement{}).
		Where("id = ?", id).
		Updates(map[string]any{"resolved_url": url, "update_user": s.user})
	if res.Error != nil {
		return fmt.Errorf("update resolved url %d: %w", id, errors.Join(domain.ErrPersistence, res.Error))
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MissingResolvedURLs lists announcements that carry a mask URL but no
// resolved document URL yet. A limit of zero means no limit.
func (s *Store) MissingResolvedURLs(ctx context.Context, limit int) ([]domain.Announcement, error) {
	q := s.db.WithContext(ctx).
		Where("mask_url <> '' AND (resolved_url IS NULL OR resolved_url = '')").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var anns []domain.Announcement
	if err := q.Find(&anns).Error; err != nil {
		return nil, fmt.Errorf("list missing resolved urls: %w", errors.Join(domain.ErrPersistence, err))
	}
	return anns, nil
}

// Undownloaded lists announcements whose documents have not been
// fetched successfully. Failed rows are included so retries pick them
// up. A limit of zero means no limit.
func (s *Store) Undownloaded(ctx context.Context, limit int) ([]domain.Announcement, error) {
	q := s.db.WithContext(ctx).
		Where("downloaded IN ?", []domain.DownloadState{domain.StateNotDownloaded, domain.StateFailed}).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var anns []domain.Announcement
	if err := q.Find(&anns).Error; err != nil {
		return nil, fmt.Errorf("list undownloaded: %w", errors.Join(domain.ErrPersistence, err))
	}
	return anns, nil
}

func templateModel(family domain.TemplateFamily) (any, string, error) {
	switch family {
	case domain.FamilyMR:
		return &templateRowMR{}, templateRowMR{}.TableName(), nil
	case domain.FamilyNZ:
		return &templateRowNZ{}, templateRowNZ{}.TableName(), nil
	default:
		return nil, "", fmt.Errorf("unknown template family %q", family)
	}
}

// TemplateNames lists the distinct valid template names in one family,
// sorted.
func (s *Store) TemplateNames(ctx context.Context, family domain.TemplateFamily) ([]string, error) {
	model, _, err := templateModel(family)
	if err != nil {
		return nil, err
	}
	var names []string
	err = s.db.WithContext(ctx).Model(model).
		Where("is_valid = ?", true).
		Distinct("template_name").
		Order("template_name").
		Pluck("template_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list template names: %w", errors.Join(domain.ErrPersistence, err))
	}
	return names, nil
}

// TemplateFields returns the field-code to pattern map for one named
// template, or domain.ErrNotFound when the family holds no such
// template.
func (s *Store) TemplateFields(ctx context.Context, family domain.TemplateFamily, name string) (map[string]string, error) {
	model, _, err := templateModel(family)
	if err != nil {
		return nil, err
	}
	var rows []TemplateRow
	err = s.db.WithContext(ctx).Model(model).
		Where("template_name = ? AND is_valid = ?", name, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", name, errors.Join(domain.ErrPersistence, err))
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	fields := make(map[string]string, len(rows))
	for _, r := range rows {
		fields[r.FieldCode] = r.Pattern
	}
	return fields, nil
}

// SaveTemplate replaces the stored rows for one named template with the
// given field set.
func (s *Store) SaveTemplate(ctx context.Context, t domain.Template) error {
	model, table, err := templateModel(t.Family)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(table).Where("template_name = ?", t.Name).Delete(model).Error; err != nil {
			return fmt.Errorf("clear template %q: %w", t.Name, errors.Join(domain.ErrPersistence, err))
		}
		for code, pattern := range t.Fields {
			row := TemplateRow{TemplateName: t.Name, FieldCode: code, Pattern: pattern, IsValid: true}
			if err := tx.Table(table).Create(&row).Error; err != nil {
				return fmt.Errorf("save template %q field %q: %w", t.Name, code, errors.Join(domain.ErrPersistence, err))
			}
		}
		return nil
	})
}

// Descriptors lists the valid field descriptors used to annotate
// extraction results.
func (s *Store) Descriptors(ctx context.Context) ([]domain.FieldDescriptor, error) {
	var rows []descriptorRow
	err := s.db.WithContext(ctx).
		Where("is_valid = ?", true).
		Order("d_code").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list descriptors: %w", errors.Join(domain.ErrPersistence, err))
	}
	out := make([]domain.FieldDescriptor, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.FieldDescriptor{
			Code:        r.Code,
			Description: r.Description,
			RemoteCode:  r.RemoteCode,
			RemoteDesc:  r.RemoteDesc,
		})
	}
	return out, nil
}

// SaveDescriptor upserts one field descriptor keyed by its internal
// code.
func (s *Store) SaveDescriptor(ctx context.Context, d domain.FieldDescriptor) error {
	row := descriptorRow{
		Code:        d.Code,
		Description: d.Description,
		RemoteCode:  d.RemoteCode,
		RemoteDesc:  d.RemoteDesc,
		IsValid:     true,
	}
	err := s.db.WithContext(ctx).
		Where("d_code = ?", d.Code).
		Assign(map[string]any{
			"d_desc":   d.Description,
			"v_code":   d.RemoteCode,
			"v_desc":   d.RemoteDesc,
			"is_valid": true,
		}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("save descriptor %q: %w", d.Code, errors.Join(domain.ErrPersistence, err))
	}
	return nil
}
