package store

// TemplateRow is one field pattern belonging to a named template. The
// two families live in separate tables with identical shape; the embed
// must stay exported so the mapper picks its columns up.
type TemplateRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	TemplateName string `gorm:"column:template_name;size:100;not null;index"`
	FieldCode    string `gorm:"column:field_code;size:50;not null"`
	Pattern      string `gorm:"column:pattern;not null"`
	IsValid      bool   `gorm:"column:is_valid;default:true"`
}

type templateRowMR struct {
	TemplateRow
}

func (templateRowMR) TableName() string { return "parse_template_mr" }

type templateRowNZ struct {
	TemplateRow
}

func (templateRowNZ) TableName() string { return "parse_template_nz" }

// descriptorRow maps an internal field code to display metadata and the
// code the external rate system uses for the same concept.
type descriptorRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Code        string `gorm:"column:d_code;size:50;not null;uniqueIndex"`
	Description string `gorm:"column:d_desc;size:255"`
	RemoteCode  string `gorm:"column:v_code;size:50"`
	RemoteDesc  string `gorm:"column:v_desc;size:255"`
	IsValid     bool   `gorm:"column:is_valid;default:true"`
}

func (descriptorRow) TableName() string { return "column_map" }
