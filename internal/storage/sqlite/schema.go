package sqlite

import "github.com/painscout/painscout/internal/storage/migrations"

var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "signals, clusters, opportunities, snapshots, runs",
		Up: `
-- Pain clusters: the root aggregate
CREATE TABLE IF NOT EXISTS pain_clusters (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 200),
    slug TEXT NOT NULL UNIQUE,
    pain_category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    centroid TEXT,
    origin TEXT NOT NULL DEFAULT 'embedding',
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Raw signals with their flattened classification
CREATE TABLE IF NOT EXISTS raw_signals (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    source_id TEXT NOT NULL,
    raw_text TEXT NOT NULL,
    thread_title TEXT NOT NULL DEFAULT '',
    parent_context TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    engagement_score INTEGER NOT NULL DEFAULT 0 CHECK(engagement_score >= 0),
    posted_at TEXT,
    status TEXT NOT NULL DEFAULT 'new',
    pain_category TEXT,
    intensity INTEGER,
    specificity INTEGER,
    wtp TEXT,
    budget_mentioned REAL,
    tools_mentioned TEXT NOT NULL DEFAULT '[]',
    existing_workarounds TEXT NOT NULL DEFAULT '',
    target_persona TEXT NOT NULL DEFAULT '',
    suggested_niche TEXT NOT NULL DEFAULT '',
    is_noise INTEGER NOT NULL DEFAULT 0,
    classification TEXT,
    cluster_id TEXT REFERENCES pain_clusters(id) ON DELETE SET NULL,
    embedding TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_raw_signals_status ON raw_signals(status);
CREATE INDEX IF NOT EXISTS idx_raw_signals_cluster ON raw_signals(cluster_id);

-- Opportunities derived from clusters
CREATE TABLE IF NOT EXISTS opportunities (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 200),
    cluster_id TEXT NOT NULL REFERENCES pain_clusters(id) ON DELETE CASCADE,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'new',
    origin TEXT NOT NULL DEFAULT 'auto',
    score_total REAL,
    verdict TEXT,
    confidence REAL,
    scored_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- At most one pipeline-created opportunity per cluster
CREATE UNIQUE INDEX IF NOT EXISTS idx_opportunities_auto_cluster
    ON opportunities(cluster_id) WHERE origin = 'auto';

-- Per-day scoring results
CREATE TABLE IF NOT EXISTS scoring_snapshots (
    opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
    snapshot_date TEXT NOT NULL,
    score_total REAL NOT NULL,
    verdict TEXT NOT NULL,
    confidence REAL NOT NULL,
    score_breakdown TEXT NOT NULL DEFAULT '{}',
    explanations TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (opportunity_id, snapshot_date)
);

-- One audit row per run
CREATE TABLE IF NOT EXISTS agent_runs (
    id TEXT PRIMARY KEY,
    agent_name TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    signals_found INTEGER NOT NULL DEFAULT 0,
    signals_new INTEGER NOT NULL DEFAULT 0,
    signals_noise INTEGER NOT NULL DEFAULT 0,
    signals_clustered INTEGER NOT NULL DEFAULT 0,
    clusters_created INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    errors TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_completed ON agent_runs(completed_at);
`,
		Down: `
DROP TABLE IF EXISTS agent_runs;
DROP TABLE IF EXISTS scoring_snapshots;
DROP TABLE IF EXISTS opportunities;
DROP TABLE IF EXISTS raw_signals;
DROP TABLE IF EXISTS pain_clusters;
`,
	},
	{
		Version:     2,
		Description: "usage events and selection-order index",
		Up: `
CREATE TABLE IF NOT EXISTS usage_events (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    model TEXT NOT NULL,
    subject_id TEXT NOT NULL DEFAULT '',
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_events_created ON usage_events(created_at);

-- Matches the ORDER BY of ListUnprocessedSignals
CREATE INDEX IF NOT EXISTS idx_raw_signals_selection
    ON raw_signals(status, engagement_score DESC, created_at, id);
`,
		Down: `
DROP INDEX IF EXISTS idx_raw_signals_selection;
DROP TABLE IF EXISTS usage_events;
`,
	},
}
