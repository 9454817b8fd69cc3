// Package domain defines the core types, error taxonomy, and result
// validation for the disclosure engine pipeline.
package domain

import "time"

// DownloadState tracks the lifecycle of an announcement's document.
// The numeric assignments are persisted and shared with downstream
// tooling, so they are fixed.
type DownloadState int

const (
	StateNotDownloaded DownloadState = 0
	StateDownloaded    DownloadState = 1
	StateFailed        DownloadState = 2
	StateInProgress    DownloadState = 3
)

// String returns a human-readable state name.
func (s DownloadState) String() string {
	switch s {
	case StateNotDownloaded:
		return "not_downloaded"
	case StateDownloaded:
		return "downloaded"
	case StateFailed:
		return "failed"
	case StateInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Announcement is one disclosure entry scraped from the source's listing
// pages. The natural key is (IssuerCode, Title, PubDate); see the store's
// FindDuplicate for the normalization applied before comparison.
type Announcement struct {
	ID          uint          `gorm:"primaryKey;autoIncrement"`
	IssuerCode  string        `gorm:"column:issuer_code;size:10;not null;uniqueIndex:uq_ann_natural_key"`
	Title       string        `gorm:"not null;uniqueIndex:uq_ann_natural_key"`
	PubDate     time.Time     `gorm:"column:pub_date;not null;uniqueIndex:uq_ann_natural_key"`
	MaskURL     string        `gorm:"column:mask_url"`
	ResolvedURL string        `gorm:"column:resolved_url"`
	PageCount   int           `gorm:"column:page_count"`
	FileSize    string        `gorm:"column:file_size"`
	Downloaded  DownloadState `gorm:"column:downloaded;default:0"`
	UpdatedAt   time.Time     `gorm:"column:update_timestamp;autoUpdateTime"`
	UpdatedBy   string        `gorm:"column:update_user;size:100"`
}

// TableName keeps the table name shared with the downstream tooling.
func (Announcement) TableName() string { return "announcements" }

// TemplateFamily distinguishes the two structurally distinct template
// collections the registry unions over.
type TemplateFamily string

const (
	FamilyMR TemplateFamily = "mr"
	FamilyNZ TemplateFamily = "nz"
)

// Template is a named set of field-code → pattern pairs belonging to
// exactly one family.
type Template struct {
	Name   string
	Family TemplateFamily
	Fields map[string]string
}

// FieldDescriptor maps an internal field code to its human-readable
// description and the code used by the external rate system. Display
// only; never consulted for matching.
type FieldDescriptor struct {
	Code        string
	Description string
	RemoteCode  string
	RemoteDesc  string
}

// Kind discriminates the typed value held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindDate
)

// Value is a tagged scalar extracted for a single field. An absent value
// is a real value of KindAbsent, never a missing map entry, so "looked
// for but not found" stays distinguishable from "never expected".
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Date time.Time
}

// Absent is the explicit missing value.
var Absent = Value{Kind: KindAbsent}

// StringValue wraps a raw string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue wraps a float.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// DateValue wraps a calendar date. Time-of-day is dropped.
func DateValue(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Kind: KindDate, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// IsAbsent reports whether no value was found for the field.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// Float returns the numeric interpretation of the value, coercing a
// string representation when possible.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := parseFloat(v.Str)
		return f, err == nil
	default:
		return 0, false
	}
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return formatFloat(v.Num)
	case KindDate:
		return v.Date.Format("2006-01-02")
	default:
		return ""
	}
}

// Field is the extraction outcome for one field code.
type Field struct {
	Value       Value  `json:"value"`
	Comment     string `json:"comment"`
	Description string `json:"description"`
}

// Result maps field codes to their extraction outcome. Catalogue fields
// that were not found in the document are present with an absent Value.
type Result map[string]Field
