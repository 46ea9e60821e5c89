package migrate

// StepKind tags what shape of schema change a step performs.
type StepKind string

const (
	// KindAddColumn adds a column to an existing table.
	KindAddColumn StepKind = "add_column"
	// KindBackfill populates data for rows that predate a change.
	KindBackfill StepKind = "backfill"
	// KindCreateTable introduces a new table.
	KindCreateTable StepKind = "create_table"
	// KindReindex creates or rebuilds indexes.
	KindReindex StepKind = "reindex"
)

// Step is one discrete, independently testable migration.
type Step struct {
	From       string
	To         string
	Name       string
	Kind       StepKind
	Up         string
	Down       string
	Reversible bool
}

// AllSteps is the ordered migration history of the store schema.
// Version 1.0.0 was the original layout: metadata, file_info (without
// file_type) and store_meta. Version 2.0.0 is the current layout.
var AllSteps = []Step{
	{
		From: "1.0.0",
		To:   "1.1.0",
		Name: "add file_info.file_type",
		Kind: KindAddColumn,
		Up: `
ALTER TABLE file_info ADD COLUMN file_type TEXT NOT NULL DEFAULT 'other';
`,
		Down: `
ALTER TABLE file_info DROP COLUMN file_type;
`,
		Reversible: true,
	},
	{
		From: "1.1.0",
		To:   "1.2.0",
		Name: "backfill file_type from extension",
		Kind: KindBackfill,
		Up: `
UPDATE file_info SET file_type = 'image'
WHERE lower(path) LIKE '%.jpg' OR lower(path) LIKE '%.jpeg'
   OR lower(path) LIKE '%.png' OR lower(path) LIKE '%.gif'
   OR lower(path) LIKE '%.bmp' OR lower(path) LIKE '%.webp'
   OR lower(path) LIKE '%.tif' OR lower(path) LIKE '%.tiff'
   OR lower(path) LIKE '%.heic' OR lower(path) LIKE '%.heif';
UPDATE file_info SET file_type = 'video'
WHERE lower(path) LIKE '%.mp4' OR lower(path) LIKE '%.mkv'
   OR lower(path) LIKE '%.avi' OR lower(path) LIKE '%.mov'
   OR lower(path) LIKE '%.wmv' OR lower(path) LIKE '%.webm'
   OR lower(path) LIKE '%.m4v' OR lower(path) LIKE '%.mpg'
   OR lower(path) LIKE '%.mpeg' OR lower(path) LIKE '%.3gp'
   OR lower(path) LIKE '%.ts';
`,
		Down: `
UPDATE file_info SET file_type = 'other';
`,
		Reversible: true,
	},
	{
		From: "1.2.0",
		To:   "1.3.0",
		Name: "create change_log",
		Kind: KindCreateTable,
		Up: `
CREATE TABLE IF NOT EXISTS change_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	path TEXT NOT NULL,
	change_type TEXT NOT NULL,
	recorded_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`,
		Down: `
DROP TABLE IF EXISTS change_log;
`,
		Reversible: true,
	},
	{
		From: "1.3.0",
		To:   "2.0.0",
		Name: "index updated_at, file_type and change_log runs",
		Kind: KindReindex,
		Up: `
CREATE INDEX IF NOT EXISTS idx_metadata_updated ON metadata(updated_at);
CREATE INDEX IF NOT EXISTS idx_file_info_type ON file_info(file_type);
CREATE INDEX IF NOT EXISTS idx_change_log_run ON change_log(run_id);
`,
		Down: `
DROP INDEX IF EXISTS idx_metadata_updated;
DROP INDEX IF EXISTS idx_file_info_type;
DROP INDEX IF EXISTS idx_change_log_run;
`,
		Reversible: true,
	},
}
